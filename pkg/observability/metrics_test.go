package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAllCollectorsExported(t *testing.T) {
	// Vectors only show up in a scrape once a child exists.
	RequestsTotal.WithLabelValues("GET", "2xx", "test")
	RequestDuration.WithLabelValues("GET", "test")
	ExecutionsTotal.WithLabelValues("e2b", "success")
	ExecutionDuration.WithLabelValues("e2b")
	SandboxOperationsTotal.WithLabelValues("e2b", OpCreate, StatusOK)
	RateLimitRejectedTotal.WithLabelValues("default")

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	exported := make(map[string]bool, len(families))
	for _, mf := range families {
		exported[mf.GetName()] = true
	}

	for _, name := range []string{
		"runcode_requests_total",
		"runcode_request_duration_seconds",
		"runcode_executions_in_flight",
		"runcode_executions_total",
		"runcode_execution_duration_seconds",
		"runcode_sandbox_operations_total",
		"runcode_duplicate_calls_total",
		"runcode_output_truncated_total",
		"runcode_ratelimit_rejected_total",
	} {
		if !exported[name] {
			t.Errorf("%s missing from the default registry", name)
		}
	}
}

func TestOpStatus(t *testing.T) {
	if got := OpStatus(nil); got != StatusOK {
		t.Errorf("OpStatus(nil) = %q, want %q", got, StatusOK)
	}
	if got := OpStatus(errors.New("boom")); got != StatusError {
		t.Errorf("OpStatus(err) = %q, want %q", got, StatusError)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("POST /v1/tools/call", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad arguments", http.StatusBadRequest)
	})
	handler := MetricsMiddleware(mux)

	tests := []struct {
		name   string
		method string
		paths  []string
		class  string
		route  string
	}{
		{
			name:   "ids collapse into the pattern",
			method: http.MethodGet,
			paths:  []string{"/v1/executions/exec_a", "/v1/executions/exec_b"},
			class:  "2xx",
			route:  "GET /v1/executions/{id}",
		},
		{
			name:   "client errors keep their class",
			method: http.MethodPost,
			paths:  []string{"/v1/tools/call"},
			class:  "4xx",
			route:  "POST /v1/tools/call",
		},
		{
			name:   "unmatched paths are other",
			method: http.MethodGet,
			paths:  []string{"/nope"},
			class:  "4xx",
			route:  "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := counter(t, RequestsTotal, tt.method, tt.class, tt.route)
			observed := samples(t, RequestDuration, tt.method, tt.route)

			for _, p := range tt.paths {
				handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, p, nil))
			}

			n := len(tt.paths)
			if got := counter(t, RequestsTotal, tt.method, tt.class, tt.route) - count; got != float64(n) {
				t.Errorf("requests delta = %v, want %d", got, n)
			}
			if got := samples(t, RequestDuration, tt.method, tt.route) - observed; got != uint64(n) {
				t.Errorf("duration samples delta = %d, want %d", got, n)
			}
		})
	}
}

func TestMetricsMiddleware_Flusher(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer lost http.Flusher")
		}
		_, _ = w.Write([]byte("event"))
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if !rec.Flushed {
		t.Error("flush did not reach the recorder")
	}
}

func write(t *testing.T, m prometheus.Metric) *dto.Metric {
	t.Helper()
	out := &dto.Metric{}
	if err := m.Write(out); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return out
}

func counter(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	return write(t, vec.WithLabelValues(labels...)).GetCounter().GetValue()
}

func samples(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	return write(t, vec.WithLabelValues(labels...).(prometheus.Metric)).GetHistogram().GetSampleCount()
}
