package registry

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"

	"github.com/rhuss/runcode/pkg/debug"
)

// instrumentRoute records runcode_builtin_api_* metrics for a provider
// route, labelled by the route pattern rather than the request path.
func (r *FunctionRegistry) instrumentRoute(provider string, route Route) http.Handler {
	hits, latency := r.metrics.routeHits, r.metrics.routeLatency
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		m := httpsnoop.CaptureMetrics(route.Handler, w, req)

		hits.WithLabelValues(provider, req.Method, route.Pattern, strconv.Itoa(m.Code)).Inc()
		latency.WithLabelValues(provider, req.Method, route.Pattern).Observe(m.Duration.Seconds())

		debug.Log("tools", "builtin route served",
			"provider", provider,
			"route", route.Pattern,
			"status", m.Code,
			"bytes", m.Written,
		)
	})
}
