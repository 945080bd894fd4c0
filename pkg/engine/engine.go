package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/auth"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/tools"
	"github.com/rhuss/runcode/pkg/transport"
)

// Engine dispatches host tool calls to tool executors.
type Engine struct {
	cfg Config
}

var _ transport.ToolService = (*Engine)(nil)

// definer is implemented by executors that can describe their tools,
// such as the builtin function registry.
type definer interface {
	DiscoveredTools() []api.ToolDefinition
}

// New creates an Engine. At least one executor is required.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Executors) == 0 {
		return nil, fmt.Errorf("engine: at least one tool executor is required")
	}
	return &Engine{cfg: cfg}, nil
}

// ListTools returns the definitions of every tool the executors describe.
func (e *Engine) ListTools(_ context.Context) []api.ToolDefinition {
	var defs []api.ToolDefinition
	seen := make(map[string]bool)
	for _, exec := range e.cfg.Executors {
		d, ok := exec.(definer)
		if !ok {
			continue
		}
		for _, def := range d.DiscoveredTools() {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			defs = append(defs, def)
		}
	}
	return defs
}

// CallTool runs a single tool call. A call outside allowed_tools yields an
// error response; an unknown tool or an invalid request is an *api.APIError.
func (e *Engine) CallTool(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
	if apiErr := api.ValidateToolCallRequest(req, e.cfg.validation()); apiErr != nil {
		return nil, apiErr
	}

	call := toToolCall(req, resolveSession(ctx, req.SessionID))

	if !tools.IsAllowed(call.Name, req.AllowedTools) {
		debug.Log("tools", "call rejected by allowed_tools", "tool", call.Name, "call_id", call.ID)
		rejected := tools.RejectedResult(call)
		return toResponse(&rejected), nil
	}

	exec := e.findExecutor(call.Name)
	if exec == nil {
		return nil, api.NewNotFoundError(fmt.Sprintf("tool %q not found", call.Name))
	}

	result, err := exec.Execute(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", call.Name, err)
	}
	return toResponse(result), nil
}

// CallTools runs the calls a model produced in one turn. Calls run
// concurrently up to MaxParallelCalls; responses keep request order.
// Failures of individual calls are reported in their responses.
func (e *Engine) CallTools(ctx context.Context, batch *api.ToolBatchRequest) (*api.ToolBatchResponse, error) {
	if len(batch.Calls) == 0 {
		return nil, api.NewInvalidRequestError("calls", "at least one call is required")
	}
	if len(batch.Calls) > e.cfg.maxBatch() {
		return nil, api.NewInvalidRequestError("calls",
			fmt.Sprintf("batch exceeds maximum of %d calls", e.cfg.maxBatch()))
	}

	session := resolveSession(ctx, batch.SessionID)
	calls := make([]tools.ToolCall, len(batch.Calls))
	index := make(map[string]int, len(calls))
	for i := range batch.Calls {
		req := &batch.Calls[i]
		if apiErr := api.ValidateToolCallRequest(req, e.cfg.validation()); apiErr != nil {
			apiErr.Param = fmt.Sprintf("calls[%d].%s", i, apiErr.Param)
			return nil, apiErr
		}
		if req.SessionID == "" {
			req.SessionID = session
		}
		calls[i] = toToolCall(req, req.SessionID)
		if _, dup := index[calls[i].ID]; dup {
			return nil, api.NewInvalidRequestError(fmt.Sprintf("calls[%d].id", i), "duplicate call id "+calls[i].ID)
		}
		index[calls[i].ID] = i
	}

	resp := &api.ToolBatchResponse{
		Object: "list",
		Data:   make([]api.ToolCallResponse, len(calls)),
	}

	allowed, rejected := tools.PartitionAllowed(calls, batch.AllowedTools)
	for i := range rejected {
		resp.Data[index[rejected[i].CallID]] = *toResponse(&rejected[i])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.maxParallel())
	for _, call := range allowed {
		g.Go(func() error {
			resp.Data[index[call.ID]] = *e.runOne(gctx, call)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range resp.Data {
		if r.EndTurn {
			resp.EndTurn = true
		}
	}
	return resp, nil
}

// runOne executes a call and turns every failure into an error response.
func (e *Engine) runOne(ctx context.Context, call tools.ToolCall) *api.ToolCallResponse {
	exec := e.findExecutor(call.Name)
	if exec == nil {
		return errorResponse(call, fmt.Sprintf("no executor found for tool %s", call.Name))
	}

	result, err := exec.Execute(ctx, call)
	if err != nil {
		slog.Warn("tool execution error",
			"tool", call.Name,
			"call_id", call.ID,
			"error", err.Error(),
		)
		return errorResponse(call, err.Error())
	}
	return toResponse(result)
}

func (e *Engine) findExecutor(name string) tools.ToolExecutor {
	for _, exec := range e.cfg.Executors {
		if exec.CanExecute(name) {
			return exec
		}
	}
	return nil
}

// resolveSession picks the duplicate-detection scope: the explicit
// session, else the caller's identity, else the anonymous subject.
func resolveSession(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if key := auth.SessionKeyFromContext(ctx); key != "" {
		return key
	}
	return auth.AnonymousSubject
}
