package observability

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
)

// MetricsMiddleware records runcode_requests_total (method, status class,
// route) and runcode_request_duration_seconds (method, route).
//
// The route label is the matched ServeMux pattern, so execution IDs in
// paths do not become labels. It must wrap the mux directly: handlers that
// replace the request hide the pattern. Unmatched requests are labelled
// "other".
//
// The response writer keeps its optional interfaces (http.Flusher for the
// MCP streamable transport, http.Hijacker).
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := r.Pattern
		if route == "" {
			route = "other"
		}
		class := strconv.Itoa(m.Code/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, class, route).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())
	})
}
