package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/tools"
)

// FunctionRegistry routes tool calls to in-process providers, records
// per-tool metrics and serves the providers' HTTP routes.
type FunctionRegistry struct {
	mu        sync.RWMutex
	providers []FunctionProvider          // insertion order
	owners    map[string]FunctionProvider // tool name -> owning provider
	reg       prometheus.Registerer
	metrics   *metrics
}

var _ tools.ToolExecutor = (*FunctionRegistry)(nil)

// Option configures a FunctionRegistry.
type Option func(*FunctionRegistry)

// WithRegisterer sends the registry's metrics and the provider collectors
// to reg instead of the default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *FunctionRegistry) { r.reg = reg }
}

func New(opts ...Option) *FunctionRegistry {
	r := &FunctionRegistry{
		owners: make(map[string]FunctionProvider),
		reg:    prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = newMetrics(r.reg)
	return r
}

// Register adds a provider. The first provider to claim a tool name owns
// it; later claims are logged and ignored. Provider collectors are
// registered too; a collector that is already registered is kept.
func (r *FunctionRegistry) Register(p FunctionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	claimed := 0
	for _, td := range p.Tools() {
		if owner, taken := r.owners[td.Name]; taken {
			slog.Warn("tool already owned by another provider",
				"tool", td.Name,
				"owner", owner.Name(),
				"ignored", p.Name(),
			)
			continue
		}
		r.owners[td.Name] = p
		claimed++
	}

	for _, c := range p.Collectors() {
		var already prometheus.AlreadyRegisteredError
		if err := r.reg.Register(c); err != nil && !errors.As(err, &already) {
			slog.Warn("registering provider collector", "provider", p.Name(), "error", err)
		}
	}

	slog.Info("provider registered", "provider", p.Name(), "tools", claimed, "routes", len(p.Routes()))
}

// CanExecute reports whether some provider owns toolName.
func (r *FunctionRegistry) CanExecute(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[toolName]
	return ok
}

// Execute hands call to the provider owning its tool name. A panicking
// provider yields an error result, not a crashed server.
func (r *FunctionRegistry) Execute(ctx context.Context, call tools.ToolCall) (result *tools.ToolResult, err error) {
	r.mu.RLock()
	p, ok := r.owners[call.Name]
	r.mu.RUnlock()

	if !ok {
		return failure(call, fmt.Sprintf("no builtin provider handles tool %q", call.Name)), nil
	}

	start := time.Now()
	status := "panic"
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("provider panicked", "provider", p.Name(), "tool", call.Name, "panic", rec)
			result, err = failure(call, fmt.Sprintf("internal error: builtin tool %q panicked", call.Name)), nil
		}
		elapsed := time.Since(start).Seconds()
		r.metrics.calls.WithLabelValues(p.Name(), call.Name, status).Inc()
		r.metrics.callDuration.WithLabelValues(p.Name(), call.Name).Observe(elapsed)
		debug.Log("tools", "builtin tool executed",
			"provider", p.Name(),
			"tool", call.Name,
			"session", call.SessionID,
			"status", status,
			"duration_s", elapsed,
		)
	}()

	result, err = p.Execute(ctx, call)
	status = executionStatus(result, err)
	return result, err
}

// failure is an error result for calls that never reached the tool.
func failure(call tools.ToolCall, msg string) *tools.ToolResult {
	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  msg,
		IsError: true,
		Status:  api.ExecutionStatusFailure,
	}
}

// executionStatus picks the metrics label for a finished call. Providers
// that report an api.ExecutionStatus are labelled with it.
func executionStatus(result *tools.ToolResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result == nil:
		return "success"
	case result.Status != "":
		return string(result.Status)
	case result.IsError:
		return "tool_error"
	default:
		return "success"
	}
}

// Tool returns the definition of the named tool, if a provider supplies it.
func (r *FunctionRegistry) Tool(name string) (api.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.owners[name]; ok {
		for _, td := range p.Tools() {
			if td.Name == name {
				return td, true
			}
		}
	}
	return api.ToolDefinition{}, false
}

// DiscoveredTools returns the definitions of every tool the registry
// routes, in registration order. Definitions that lost a name conflict are
// left out.
func (r *FunctionRegistry) DiscoveredTools() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []api.ToolDefinition
	for _, p := range r.providers {
		for _, td := range p.Tools() {
			if r.owners[td.Name] == p {
				defs = append(defs, td)
			}
		}
	}
	return defs
}

// HTTPHandler serves every provider route, instrumented. Mount it under
// "/builtin/" behind the server's auth middleware.
func (r *FunctionRegistry) HTTPHandler() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mux := http.NewServeMux()
	for _, p := range r.providers {
		for _, route := range p.Routes() {
			pattern := route.Pattern
			if route.Method != "" {
				pattern = route.Method + " " + pattern
			}
			mux.Handle(pattern, r.instrumentRoute(p.Name(), route))
		}
	}
	return mux
}

// Close closes every provider, even after one fails, and joins the errors.
func (r *FunctionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *FunctionRegistry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
