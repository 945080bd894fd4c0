// Package registry hosts the tools the server runs in-process. Each
// FunctionProvider contributes tool definitions, optional HTTP routes
// mounted under /builtin/ and optional Prometheus collectors. The
// FunctionRegistry routes calls to the owning provider.
package registry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/tools"
)

// FunctionProvider is a family of in-process tools.
type FunctionProvider interface {
	// Name labels the provider in logs and metrics, e.g. "runcode".
	Name() string

	Tools() []api.ToolDefinition
	CanExecute(name string) bool

	// Execute runs one call. Tool-level failures belong in the result;
	// a returned error means the call could not be attempted.
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)

	// Routes may be empty. Patterns are absolute, e.g. "/builtin/runcode/cache".
	Routes() []Route

	Collectors() []prometheus.Collector
	Close() error
}

// Route is one provider HTTP endpoint. An empty Method matches any.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
