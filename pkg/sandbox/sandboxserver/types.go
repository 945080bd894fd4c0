// Package sandboxserver implements the sandbox.Backend contract on top of
// the sandbox-server REST API (cmd/sandbox-server). The server runs either
// at a static URL (development) or inside agent-sandbox pods (see the
// kubernetes package, which reuses this client).
package sandboxserver

// Stderr markers of the sandbox-server protocol. A run that hit its
// deadline always carries a TimeoutNotice line, after whatever the code
// already wrote to stderr.
const (
	TimeoutNotice       = "execution timed out"
	InstallFailedPrefix = "package installation failed: "
)

// ExecuteRequest is the request body for POST /execute on the sandbox server.
type ExecuteRequest struct {
	Code           string            `json:"code"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Requirements   []string          `json:"requirements,omitempty"`
	Files          map[string]string `json:"files,omitempty"`
}

// ExecuteResponse is the response from POST /execute on the sandbox server.
type ExecuteResponse struct {
	Status          string            `json:"status"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	ExitCode        int               `json:"exit_code"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	FilesProduced   map[string]string `json:"files_produced,omitempty"`
}

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Mode           string `json:"mode"`
	RuntimeVersion string `json:"runtime_version"`
	Capacity       int    `json:"capacity"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}
