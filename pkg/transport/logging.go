package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/runcode/pkg/api"
)

// Logging returns middleware that emits one structured log entry per tool
// call with the request ID, tool, session, outcome status and duration.
// HTTP status codes are logged by the HTTP adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ToolCaller) ToolCaller {
		return ToolCallerFunc(func(ctx context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
			start := time.Now()

			resp, err := next.CallTool(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("tool", req.Name),
				slog.String("call_id", req.ID),
				slog.String("session", req.SessionID),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "tool call failed", attrs...)
			case resp != nil:
				attrs = append(attrs,
					slog.String("status", resp.Status),
					slog.Bool("duplicate", resp.Duplicate),
					slog.String("delivery", string(resp.Delivery)),
				)
				level := slog.LevelInfo
				if resp.IsError {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "tool call completed", attrs...)
			}

			return resp, err
		})
	}
}
