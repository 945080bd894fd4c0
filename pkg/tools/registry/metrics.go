package registry

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyBuckets spans quick cache lookups up to sandbox runs near the
// execution timeout.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}

// metrics are the registry's own collectors. Registries sharing a
// Registerer share the underlying vectors.
type metrics struct {
	calls        *prometheus.CounterVec   // provider, tool_name, status
	callDuration *prometheus.HistogramVec // provider, tool_name
	routeHits    *prometheus.CounterVec   // provider, method, path, status
	routeLatency *prometheus.HistogramVec // provider, method, path
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		calls: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runcode_builtin_tool_executions_total",
			Help: "Tool calls handled by in-process providers, by outcome.",
		}, []string{"provider", "tool_name", "status"})),
		callDuration: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runcode_builtin_tool_duration_seconds",
			Help:    "Wall time of tool calls handled by in-process providers.",
			Buckets: latencyBuckets,
		}, []string{"provider", "tool_name"})),
		routeHits: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runcode_builtin_api_requests_total",
			Help: "HTTP requests served by provider routes, by status code.",
		}, []string{"provider", "method", "path", "status"})),
		routeLatency: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runcode_builtin_api_duration_seconds",
			Help:    "Latency of HTTP requests served by provider routes.",
			Buckets: latencyBuckets,
		}, []string{"provider", "method", "path"})),
	}
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor. Other registration errors leave c working but
// unexported.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	slog.Warn("registering registry collector", "error", err)
	return c
}
