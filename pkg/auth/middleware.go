package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/observability"
	"github.com/rhuss/runcode/pkg/storage"
	"github.com/rhuss/runcode/pkg/transport"
)

// DefaultBypassEndpoints are served without authentication when no bypass
// list is configured.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// bypassList matches request paths that skip authentication. Entries
// ending in "/" match their whole subtree.
type bypassList struct {
	exact    map[string]bool
	prefixes []string
}

func newBypassList(endpoints []string) bypassList {
	b := bypassList{exact: make(map[string]bool, len(endpoints))}
	for _, ep := range endpoints {
		if strings.HasSuffix(ep, "/") {
			b.prefixes = append(b.prefixes, ep)
		} else {
			b.exact[ep] = true
		}
	}
	return b
}

func (b bypassList) match(path string) bool {
	if b.exact[path] {
		return true
	}
	for _, p := range b.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware authenticates every request outside bypassEndpoints with
// chain, applies limiter when it is non-nil and stores the identity and
// tenant on the request context.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := newBypassList(bypassEndpoints)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			id := result.Identity
			switch {
			case result.Decision != Yes || id == nil:
				slog.Warn("authentication failed",
					"decision", result.Decision,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
				return
			case id.Subject == "":
				slog.Error("authenticator returned identity with empty subject", "path", r.URL.Path)
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}
			debug.Log("auth", "authenticated", "subject", id.Subject, "tier", id.ServiceTier, "path", r.URL.Path)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.ServiceTier)
					observability.RateLimitRejectedTotal.WithLabelValues(tierOf(id)).Inc()
					w.Header().Set("Retry-After", "60")
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := SetIdentity(r.Context(), id)
			if tenant := id.TenantID(); tenant != "" {
				ctx = storage.WithTenant(ctx, tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
