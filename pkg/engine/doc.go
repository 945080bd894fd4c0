// Package engine implements transport.ToolService: it validates tool-call
// requests from agent hosts, resolves the session that scopes duplicate
// detection, applies allowed_tools, dispatches to the configured tool
// executors, and renders results (including base64 images and the
// end-of-turn flag) for the transports.
package engine
