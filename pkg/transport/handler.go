package transport

import (
	"context"

	"github.com/rhuss/runcode/pkg/api"
)

// ToolCaller handles a single tool call from an agent host. Tool-level
// failures (sandbox errors, invalid code) are reported in the response
// with IsError set; a returned error is a request-level problem such as
// an unknown tool or a malformed request, and is usually an *api.APIError.
type ToolCaller interface {
	CallTool(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error)
}

// ToolCallerFunc is an adapter that allows using an ordinary function
// as a ToolCaller.
type ToolCallerFunc func(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error)

// CallTool calls f(ctx, req).
func (f ToolCallerFunc) CallTool(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
	return f(ctx, req)
}

// ToolLister returns the tool definitions offered to agent hosts.
type ToolLister interface {
	ListTools(ctx context.Context) []api.ToolDefinition
}

// ToolService is the full tool contract served by the transports.
type ToolService interface {
	ToolCaller
	ToolLister
}

// BatchCaller runs the tool calls a model produced in one turn.
type BatchCaller interface {
	CallTools(ctx context.Context, batch *api.ToolBatchRequest) (*api.ToolBatchResponse, error)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	SessionID string // Filter executions by session.
	After     string // Cursor: return items after this ID.
	Limit     int    // Maximum number of items to return (default 20, max 100).
	Order     string // Sort order: "asc" or "desc" (default "desc").
}

// EffectiveLimit returns the limit clamped to [1, 100], defaulting to 20.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return 20
	case o.Limit > 100:
		return 100
	default:
		return o.Limit
	}
}

// ExecutionStore persists sandbox execution records. It is only available
// when storage is configured.
type ExecutionStore interface {
	// SaveExecution persists a finished execution.
	SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error

	// GetExecution retrieves an execution by ID. Returns storage.ErrNotFound
	// if it does not exist or belongs to another tenant.
	GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error)

	// ListExecutions returns a page of executions, filtered by tenant
	// (when present in context) and optionally by session.
	ListExecutions(ctx context.Context, opts ListOptions) (*api.ExecutionList, error)

	// DeleteExecution removes an execution by ID.
	DeleteExecution(ctx context.Context, id string) error

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}
