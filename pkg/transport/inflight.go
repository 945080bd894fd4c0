package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/rhuss/runcode/pkg/api"
)

// ErrCancelledByClient is the cancellation cause of calls aborted through
// InFlightRegistry.Cancel.
var ErrCancelledByClient = errors.New("call cancelled by client")

// InFlightRegistry maps the IDs of running calls to their cancel
// functions so that DELETE /v1/tools/calls/{id} can abort a call while its
// sandbox is still running. Safe for concurrent use.
type InFlightRegistry struct {
	mu    sync.Mutex
	calls map[string]context.CancelCauseFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{calls: make(map[string]context.CancelCauseFunc)}
}

// Register records a running call. It reports false, leaving the
// registry unchanged, when id is already in flight.
func (r *InFlightRegistry) Register(id string, cancel context.CancelCauseFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.calls[id]; busy {
		return false
	}
	r.calls[id] = cancel
	return true
}

// Cancel aborts the call with ErrCancelledByClient as the cause. It
// reports false when no such call is running.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.calls[id]
	delete(r.calls, id)
	r.mu.Unlock()

	if ok {
		cancel(ErrCancelledByClient)
	}
	return ok
}

// Remove forgets a finished call without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// InFlight registers each call for the duration of its execution,
// generating a call ID when the request has none. A request reusing the ID
// of a running call is rejected.
func InFlight(reg *InFlightRegistry) Middleware {
	return func(next ToolCaller) ToolCaller {
		return ToolCallerFunc(func(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
			if req.ID == "" {
				req.ID = api.NewCallID()
			}

			ctx, cancel := context.WithCancelCause(ctx)
			defer cancel(nil)

			if !reg.Register(req.ID, cancel) {
				return nil, api.NewInvalidRequestError("id", "a call with id "+req.ID+" is already in progress")
			}
			defer reg.Remove(req.ID)

			return next.CallTool(ctx, req)
		})
	}
}
