package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/runcode/pkg/api"
)

// Recovery turns a panic below it into a server_error for that call
// alone and logs the stack.
func Recovery() Middleware {
	return func(next ToolCaller) ToolCaller {
		return ToolCallerFunc(func(ctx context.Context, req *api.ToolCallRequest) (resp *api.ToolCallResponse, err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				slog.Error("tool call panicked",
					"tool", req.Name,
					"call_id", req.ID,
					"request_id", RequestIDFromContext(ctx),
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				resp, err = nil, api.NewServerError(fmt.Sprintf("internal server error: %v", rec))
			}()
			return next.CallTool(ctx, req)
		})
	}
}
