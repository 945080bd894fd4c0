package e2b

// createRequest is the body of POST /sandboxes.
type createRequest struct {
	TemplateID string            `json:"templateID"`
	Timeout    int               `json:"timeout"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// createResponse is the control plane's answer to POST /sandboxes.
type createResponse struct {
	SandboxID       string `json:"sandboxID"`
	TemplateID      string `json:"templateID"`
	ClientID        string `json:"clientID"`
	EnvdVersion     string `json:"envdVersion"`
	EnvdAccessToken string `json:"envdAccessToken"`
	Domain          string `json:"domain"`
}

// executeRequest is the body of POST /execute on the code interpreter.
type executeRequest struct {
	Code string `json:"code"`
}

// event is one NDJSON line of the /execute stream. Fields are populated
// according to Type.
type event struct {
	Type string `json:"type"`

	// stdout, stderr, result
	Text string `json:"text,omitempty"`

	// result
	HTML         string         `json:"html,omitempty"`
	Markdown     string         `json:"markdown,omitempty"`
	SVG          string         `json:"svg,omitempty"`
	PNG          string         `json:"png,omitempty"`
	JPEG         string         `json:"jpeg,omitempty"`
	JSON         map[string]any `json:"json,omitempty"`
	IsMainResult bool           `json:"is_main_result,omitempty"`

	// error
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
	Traceback string `json:"traceback,omitempty"`

	// number_of_executions
	ExecutionCount int `json:"execution_count,omitempty"`
}

const (
	eventStdout         = "stdout"
	eventStderr         = "stderr"
	eventResult         = "result"
	eventError          = "error"
	eventExecutionCount = "number_of_executions"
	eventEnd            = "end_of_execution"
)
