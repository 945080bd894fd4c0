// Package tools defines the tool executor contract between the transports
// (HTTP tool-call API, MCP) and the tool implementations. A ToolCall
// carries the model's arguments plus the session it belongs to; a
// ToolResult carries the formatted output, its delivery hint and any
// images the tool produced.
//
// The package also provides allowed_tools filtering.
//
// This package depends only on pkg/api and has no external dependencies.
package tools
