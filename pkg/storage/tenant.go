package storage

import "context"

type tenantKey struct{}

// WithTenant scopes every store call made with the returned context to
// tenantID. An empty tenantID means single-tenant mode.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// Tenant returns the tenant the context is scoped to, or "".
func Tenant(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey{}).(string)
	return tenantID
}

// Visible reports whether a record owned by recordTenant may be read or
// deleted through ctx. Unscoped contexts see every record.
func Visible(ctx context.Context, recordTenant string) bool {
	tenantID := Tenant(ctx)
	return tenantID == "" || tenantID == recordTenant
}
