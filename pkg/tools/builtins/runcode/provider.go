// Package runcode provides the FunctionProvider for the run_python_code
// tool. It decodes the model's arguments, hands the code to a
// runner.Runner and converts the outcome into a tools.ToolResult.
package runcode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/runner"
	"github.com/rhuss/runcode/pkg/tools"
	"github.com/rhuss/runcode/pkg/tools/registry"
)

// ToolName is the name the model calls.
const ToolName = "run_python_code"

var _ registry.FunctionProvider = (*Provider)(nil)

// Provider exposes run_python_code.
type Provider struct {
	runner     *runner.Runner
	cacheGauge prometheus.GaugeFunc
}

// New creates a provider backed by r.
func New(r *runner.Runner) *Provider {
	return &Provider{
		runner: r,
		cacheGauge: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "runcode_dedup_cache_entries",
			Help: "Entries currently held in the duplicate-call cache",
		}, func() float64 {
			return float64(r.Dedup().Len())
		}),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return "runcode" }

// Tools returns the run_python_code definition.
func (p *Provider) Tools() []api.ToolDefinition {
	silentDesc := "If true, the output is returned to you for further reasoning. " +
		"If false, it is shown directly to the user and your turn ends."
	if p.runner.Config().DefaultSilent {
		silentDesc += " Defaults to true."
	} else {
		silentDesc += " Defaults to false."
	}

	params, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Python code to execute. Print anything you want to see; the value of the last expression is returned too.",
			},
			"silent": map[string]any{
				"type":        "boolean",
				"description": silentDesc,
			},
		},
		"required": []string{"code"},
	})

	return []api.ToolDefinition{{
		Type: "function",
		Name: ToolName,
		Description: "Run Python code in a fresh remote sandbox and return its standard output, " +
			"error output, return value and any execution error. Each call starts from a clean interpreter.",
		Parameters: params,
	}}
}

// CanExecute reports whether name is run_python_code.
func (p *Provider) CanExecute(name string) bool { return name == ToolName }

type arguments struct {
	Code   string `json:"code"`
	Silent *bool  `json:"silent"`
}

// Execute runs the tool. Argument problems come back as error results.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args arguments
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.ToolResult{
				CallID:  call.ID,
				Output:  fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
				Status:  api.ExecutionStatusFailure,
			}, nil
		}
	}

	out := p.runner.Run(ctx, runner.Request{
		SessionID: call.SessionID,
		Code:      args.Code,
		Silent:    args.Silent,
	})
	return toResult(call.ID, out), nil
}

func toResult(callID string, out *runner.Outcome) *tools.ToolResult {
	result := &tools.ToolResult{
		CallID:      callID,
		Output:      out.Text,
		IsError:     out.Status.IsError(),
		Delivery:    out.Delivery,
		Status:      out.Status,
		Duplicate:   out.Duplicate,
		ExecutionID: out.ExecutionID,
	}
	for _, img := range out.Images {
		result.Images = append(result.Images, tools.Image{MIMEType: img.MIME, Data: img.Data})
	}
	return result
}

// Routes exposes a status page for the runner.
func (p *Provider) Routes() []registry.Route {
	return []registry.Route{{
		Method:  http.MethodGet,
		Pattern: "/builtin/runcode/status",
		Handler: p.handleStatus,
	}}
}

type statusResponse struct {
	Backend       string `json:"backend"`
	Configured    bool   `json:"configured"`
	DedupEnabled  bool   `json:"dedup_enabled"`
	DedupEntries  int    `json:"dedup_entries"`
	DefaultSilent bool   `json:"default_silent"`
	Locale        string `json:"locale"`
}

func (p *Provider) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := p.runner.Config()
	backend := p.runner.BackendName()
	resp := statusResponse{
		Backend:       backend,
		Configured:    backend != "",
		DedupEnabled:  p.runner.Dedup() != nil,
		DedupEntries:  p.runner.Dedup().Len(),
		DefaultSilent: cfg.DefaultSilent,
		Locale:        cfg.Locale,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Collectors returns the cache size gauge.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.cacheGauge}
}

// Close releases resources. The runner owns nothing that needs closing.
func (p *Provider) Close() error { return nil }
