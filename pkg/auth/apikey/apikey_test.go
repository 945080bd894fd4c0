package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/rhuss/runcode/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]RawKeyEntry{
		{
			Key: "rc-test-key-1",
			Identity: auth.Identity{
				Subject:     "agent-host-1",
				ServiceTier: "standard",
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Key:      "rc-test-key-2",
			Identity: auth.Identity{Subject: "agent-host-2", ServiceTier: "premium"},
		},
	})
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		want        auth.AuthDecision
		wantSubject string
	}{
		{"bearer key", map[string]string{"Authorization": "Bearer rc-test-key-1"}, auth.Yes, "agent-host-1"},
		{"second key", map[string]string{"Authorization": "Bearer rc-test-key-2"}, auth.Yes, "agent-host-2"},
		{"x-api-key header", map[string]string{"X-API-Key": "rc-test-key-2"}, auth.Yes, "agent-host-2"},
		{"x-api-key wins over bearer", map[string]string{"X-API-Key": "rc-test-key-1", "Authorization": "Bearer nope"}, auth.Yes, "agent-host-1"},
		{"invalid key", map[string]string{"Authorization": "Bearer rc-wrong"}, auth.No, ""},
		{"invalid x-api-key", map[string]string{"X-API-Key": "rc-wrong"}, auth.No, ""},
		{"empty bearer", map[string]string{"Authorization": "Bearer "}, auth.No, ""},
		{"no header", nil, auth.Abstain, ""},
		{"basic auth", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, auth.Abstain, ""},
		{"jwt left to jwt authenticator", map[string]string{"Authorization": "Bearer aaa.bbb.ccc"}, auth.Abstain, ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodPost, "/v1/tools/call", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			result := a.Authenticate(context.Background(), r)
			if result.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", result.Decision, tt.want)
			}
			if tt.want == auth.Yes && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestIdentityIsCopied(t *testing.T) {
	a := newTestAuth()
	r, _ := http.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer rc-test-key-1")

	first := a.Authenticate(context.Background(), r)
	if first.Identity.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want org-1", first.Identity.TenantID())
	}
	first.Identity.Subject = "mutated"
	first.Identity.Metadata["tenant_id"] = "org-2"

	second := a.Authenticate(context.Background(), r)
	if second.Identity.Subject != "agent-host-1" || second.Identity.TenantID() != "org-1" {
		t.Errorf("identity should not be shared between requests, got %+v", second.Identity)
	}
}
