// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the runcode service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// SandboxBuckets defines histogram buckets for sandbox round-trips, from
// 100ms (warm server backend) to 2 minutes (cold claim plus a slow cell).
var SandboxBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Execution status and sandbox operation labels.
const (
	OpCreate = "create"
	OpRun    = "run"
	OpKill   = "kill"

	StatusOK    = "ok"
	StatusError = "error"
)

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcode_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runcode_request_duration_seconds",
			Help:    "Request duration",
			Buckets: SandboxBuckets,
		},
		[]string{"method", "route"},
	)

	// ExecutionsInFlight tracks sandbox executions currently running.
	ExecutionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runcode_executions_in_flight",
			Help: "Sandbox executions in flight",
		},
	)

	// ExecutionsTotal counts tool executions by backend and outcome status.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcode_executions_total",
			Help: "Code executions",
		},
		[]string{"backend", "status"},
	)

	// ExecutionDuration records the full create, run and kill round-trip.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runcode_execution_duration_seconds",
			Help:    "Code execution round-trip duration",
			Buckets: SandboxBuckets,
		},
		[]string{"backend"},
	)

	// SandboxOperationsTotal counts backend calls by operation and result.
	SandboxOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcode_sandbox_operations_total",
			Help: "Sandbox backend operations",
		},
		[]string{"backend", "op", "status"},
	)

	// DuplicateCallsTotal counts calls answered from the duplicate cache.
	DuplicateCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runcode_duplicate_calls_total",
			Help: "Duplicate tool calls answered from cache",
		},
	)

	// OutputTruncatedTotal counts outputs cut to the configured length.
	OutputTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runcode_output_truncated_total",
			Help: "Truncated execution outputs",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runcode_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ExecutionsInFlight,
		ExecutionsTotal,
		ExecutionDuration,
		SandboxOperationsTotal,
		DuplicateCallsTotal,
		OutputTruncatedTotal,
		RateLimitRejectedTotal,
	)
}

// OpStatus returns the sandbox operation status label for err.
func OpStatus(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
