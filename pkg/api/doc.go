// Package api defines the wire types of the runcode tool-call API.
//
// Hosts list tools with GET /v1/tools, invoke them with POST /v1/tools/call
// and read execution history from /v1/executions. This package holds the
// request and response bodies for those endpoints, the execution record
// persisted by storage, the structured error type and ID generation.
//
// The package has no external dependencies and performs no I/O.
//
// Core types:
//   - [ToolDefinition]: A tool advertised to the host
//   - [ToolCallRequest]: A host's request to invoke a tool
//   - [ToolCallResponse]: The formatted tool output plus delivery hints
//   - [ExecutionRecord]: One stored sandbox run
//   - [APIError]: Structured error with type, code, param, and message
package api
