// Package mcp exposes the tool service as a Model Context Protocol
// server, so MCP-capable agent hosts can call run_python_code without the
// HTTP tool-call API. It serves streamable HTTP (mounted at /mcp) and
// stdio.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/transport"
)

// Meta keys carried on every tool result.
const (
	MetaDelivery    = "runcode/delivery"
	MetaEndTurn     = "runcode/end_turn"
	MetaStatus      = "runcode/status"
	MetaExecutionID = "runcode/execution_id"
)

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string

	// Middleware wraps every tool call, as on the HTTP transport.
	Middleware []transport.Middleware
}

// Server adapts a transport.ToolService to an MCP server.
type Server struct {
	server *mcp.Server
	caller transport.ToolCaller
}

// New creates an MCP server offering every tool the service lists.
func New(ctx context.Context, svc transport.ToolService, opts Options) (*Server, error) {
	if opts.Name == "" {
		opts.Name = "runcode"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil),
		caller: transport.Chain(opts.Middleware...)(svc),
	}

	for _, def := range svc.ListTools(ctx) {
		tool, err := toMCPTool(def)
		if err != nil {
			return nil, err
		}
		s.server.AddTool(tool, s.handle)
		debug.Log("mcp", "tool exposed", "tool", def.Name)
	}
	return s, nil
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

// RunStdio serves a single client over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves a single client over t.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

func toMCPTool(def api.ToolDefinition) (*mcp.Tool, error) {
	schema := map[string]any{"type": "object"}
	if len(def.Parameters) > 0 {
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", def.Name, err)
		}
	}
	return &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: schema,
	}, nil
}

func (s *Server) handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	call := &api.ToolCallRequest{
		Name:      req.Params.Name,
		Arguments: api.Arguments(req.Params.Arguments),
		SessionID: sessionKey(req),
	}

	resp, err := s.caller.CallTool(ctx, call)
	if err != nil {
		apiErr := transport.AsAPIError(err)
		slog.Warn("mcp tool call failed", "tool", call.Name, "error", apiErr.Message)
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: apiErr.Message}},
		}, nil
	}
	return toResult(resp), nil
}

// sessionKey scopes duplicate detection to the MCP session. Transports
// without session IDs (stdio, in-memory) fall back to the caller identity.
func sessionKey(req *mcp.CallToolRequest) string {
	if req.Session == nil {
		return ""
	}
	if id := req.Session.ID(); id != "" {
		return "mcp:" + id
	}
	return ""
}

func toResult(resp *api.ToolCallResponse) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		IsError: resp.IsError,
		Content: []mcp.Content{&mcp.TextContent{Text: resp.Output}},
		Meta: mcp.Meta{
			MetaDelivery: string(resp.Delivery),
			MetaEndTurn:  resp.EndTurn,
		},
	}
	if resp.Status != "" {
		result.Meta[MetaStatus] = resp.Status
	}
	if resp.ExecutionID != "" {
		result.Meta[MetaExecutionID] = resp.ExecutionID
	}

	for _, img := range resp.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			slog.Warn("dropping undecodable image", "call_id", resp.CallID, "error", err)
			continue
		}
		result.Content = append(result.Content, &mcp.ImageContent{Data: data, MIMEType: img.MIMEType})
	}
	return result
}
