// Package sandbox defines the contract between runcode and a remote code
// execution backend. A Backend provisions Sandboxes; a Sandbox runs code and
// is killed afterwards. Isolation, process execution and resource accounting
// all happen on the remote side.
//
// Implementations live in subpackages: e2b (E2B cloud), sandboxserver (a
// sandbox-server at a static URL) and kubernetes (agent-sandbox claims).
package sandbox

import (
	"context"
	"strings"
	"time"
)

// Backend provisions sandboxes.
type Backend interface {
	// Name returns a short identifier used in logs and metrics (e.g., "e2b").
	Name() string

	// Create provisions a fresh sandbox. The caller must Kill it.
	Create(ctx context.Context) (Sandbox, error)
}

// Sandbox is a single provisioned execution environment.
type Sandbox interface {
	// ID returns the backend-assigned sandbox identifier.
	ID() string

	// RunCode executes code with the given timeout. Language-level failures
	// are reported in Execution.Error; a non-nil error means the round-trip
	// itself failed.
	RunCode(ctx context.Context, code string, timeout time.Duration) (*Execution, error)

	// Kill releases the sandbox. Killing a sandbox that is already gone
	// returns nil.
	Kill(ctx context.Context) error
}

// Execution is the result of a RunCode call.
type Execution struct {
	Logs           Logs            `json:"logs"`
	Results        []Result        `json:"results,omitempty"`
	Error          *ExecutionError `json:"error,omitempty"`
	ExecutionCount int             `json:"execution_count,omitempty"`
}

// Logs holds the stdout and stderr chunks in arrival order.
type Logs struct {
	Stdout []string `json:"stdout,omitempty"`
	Stderr []string `json:"stderr,omitempty"`
}

// Result is one rich output of an execution. Binary formats are base64.
type Result struct {
	Text         string         `json:"text,omitempty"`
	HTML         string         `json:"html,omitempty"`
	Markdown     string         `json:"markdown,omitempty"`
	SVG          string         `json:"svg,omitempty"`
	PNG          string         `json:"png,omitempty"`
	JPEG         string         `json:"jpeg,omitempty"`
	JSON         map[string]any `json:"json,omitempty"`
	IsMainResult bool           `json:"is_main_result,omitempty"`
}

// ExecutionError describes an error raised by the executed code.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback,omitempty"`
}

// Text returns the text of the main result, which is the value of the last
// expression in the executed cell. Returns "" when there is none.
func (e *Execution) Text() string {
	if e == nil {
		return ""
	}
	for _, r := range e.Results {
		if r.IsMainResult {
			return r.Text
		}
	}
	return ""
}

// Stdout returns all stdout chunks joined.
func (e *Execution) Stdout() string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Logs.Stdout, "")
}

// Stderr returns all stderr chunks joined.
func (e *Execution) Stderr() string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Logs.Stderr, "")
}

// HasImage reports whether the result carries a renderable image.
func (r Result) HasImage() bool {
	return r.PNG != "" || r.JPEG != "" || r.SVG != ""
}
