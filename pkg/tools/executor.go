package tools

import (
	"context"

	"github.com/rhuss/runcode/pkg/api"
)

// ToolExecutor executes tool calls.
type ToolExecutor interface {
	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. Tool-level failures
	// are reported as a ToolResult with IsError set; a non-nil error
	// means the executor itself failed.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	// ID is the unique call identifier (from the model, e.g., "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments object.
	Arguments string

	// SessionID identifies the conversation the call belongs to. Tools
	// use it to detect repeated calls.
	SessionID string
}

// Image is binary output attached to a ToolResult.
type Image struct {
	MIMEType string
	Data     []byte
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool output content (text).
	Output string

	// IsError indicates that the output is an error message.
	IsError bool

	// Delivery says whether Output goes back to the model or straight to
	// the user. Empty means the model.
	Delivery api.Delivery

	// Images are images produced by the tool.
	Images []Image

	// Status is the execution status, when the tool reports one.
	Status api.ExecutionStatus

	// Duplicate marks a result served from the duplicate-call cache.
	Duplicate bool

	// ExecutionID references the stored execution record, if any.
	ExecutionID string
}

// EndsTurn reports whether the host should end the model turn after
// delivering this result to the user.
func (r *ToolResult) EndsTurn() bool {
	return r.Delivery == api.DeliveryUser
}
