// Package noop provides an authenticator that accepts all requests. Used
// for local development and stdio deployments.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/runcode/pkg/auth"
)

// Authenticator always returns Yes. The subject is taken from the
// X-Session-ID header when present so local hosts still get per-session
// duplicate detection, otherwise it is "anonymous".
type Authenticator struct{}

// Authenticate implements auth.Authenticator.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	subject := auth.AnonymousSubject
	if r != nil {
		if s := r.Header.Get("X-Session-ID"); s != "" {
			subject = s
		}
	}
	return auth.Accept(&auth.Identity{Subject: subject, ServiceTier: "default"})
}
