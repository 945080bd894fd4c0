// Package transport defines the handler interfaces and middleware chain
// shared by the runcode transports (the JSON tool-call API in
// pkg/transport/http and the MCP server in pkg/transport/mcp).
//
// # Handler Interfaces
//
//   - ToolCaller handles a single tool call and returns its result.
//   - ToolLister returns the tool definitions offered to agent hosts.
//   - ExecutionStore persists execution records, available only when
//     storage is configured.
//
// # Middleware
//
// The middleware chain wraps ToolCaller with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), in-flight call tracking for cancellation, and structured
// logging via log/slog.
package transport
