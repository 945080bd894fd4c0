package auth

import "context"

type identityKey struct{}

// SetIdentity attaches the authenticated caller to ctx.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller attached by the middleware, or
// nil for unauthenticated requests and stdio sessions.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// SessionKeyFromContext returns the duplicate-detection scope of the
// caller on ctx, or "" when nobody is authenticated.
func SessionKeyFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).SessionKey()
}
