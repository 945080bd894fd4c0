package storage

import (
	"context"
	"testing"
)

func TestTenantScope(t *testing.T) {
	ctx := context.Background()
	if got := Tenant(ctx); got != "" {
		t.Errorf("Tenant(background) = %q, want empty", got)
	}

	ctx = WithTenant(ctx, "acme")
	if got := Tenant(ctx); got != "acme" {
		t.Errorf("Tenant = %q, want %q", got, "acme")
	}

	// A plain string key must not be mistaken for the tenant.
	ctx = context.WithValue(context.Background(), "tenant", "wrong")
	if got := Tenant(ctx); got != "" {
		t.Errorf("Tenant with string key = %q, want empty", got)
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name   string
		scope  string
		record string
		want   bool
	}{
		{"unscoped sees tenant record", "", "acme", true},
		{"unscoped sees untenanted record", "", "", true},
		{"same tenant", "acme", "acme", true},
		{"other tenant", "acme", "globex", false},
		{"scoped does not see untenanted record", "acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.scope != "" {
				ctx = WithTenant(ctx, tt.scope)
			}
			if got := Visible(ctx, tt.record); got != tt.want {
				t.Errorf("Visible(%q, %q) = %v, want %v", tt.scope, tt.record, got, tt.want)
			}
		})
	}
}
