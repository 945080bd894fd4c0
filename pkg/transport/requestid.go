package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/runcode/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// call. An ID already in the context (set by the HTTP adapter from the
// X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next ToolCaller) ToolCaller {
		return ToolCallerFunc(func(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.CallTool(ctx, req)
		})
	}
}

// NewRequestID returns a fresh request ID.
func NewRequestID() string {
	return uuid.NewString()
}

type requestIDKey struct{}

// RequestIDFromContext returns the call's request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID tags ctx with a request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
