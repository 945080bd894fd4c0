package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/config"
)

func TestNewBackend(t *testing.T) {
	cfg := config.Defaults().Sandbox

	if _, err := newBackend(cfg, cfg.E2B.Lifetime.Std()); err == nil || !strings.Contains(err.Error(), "E2B API key") {
		t.Errorf("missing key: err = %v", err)
	}

	cfg.E2B.APIKey = "e2b-test"
	b, err := newBackend(cfg, cfg.E2B.Lifetime.Std())
	if err != nil || b.Name() != "e2b" {
		t.Errorf("e2b: backend = %v, err = %v", b, err)
	}

	cfg.Backend = "server"
	cfg.Server.URL = "http://localhost:8080"
	b, err = newBackend(cfg, cfg.E2B.Lifetime.Std())
	if err != nil || b.Name() != "server" {
		t.Errorf("server: backend = %v, err = %v", b, err)
	}

	cfg.Backend = "docker"
	if _, err := newBackend(cfg, cfg.E2B.Lifetime.Std()); err == nil {
		t.Error("unknown backend: expected error")
	}
}

func TestNewApp_ReportsMissingBackend(t *testing.T) {
	cfg := config.Defaults()
	a, err := newApp(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	defer a.Close()

	defs := a.engine.ListTools(context.Background())
	if len(defs) != 1 || defs[0].Name != "run_python_code" {
		t.Fatalf("tools = %+v, want run_python_code", defs)
	}

	resp, err := a.engine.CallTool(context.Background(), &api.ToolCallRequest{
		Name:      "run_python_code",
		Arguments: api.Arguments(`{"code":"print(1)"}`),
	})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !strings.Contains(resp.Output, "Configuration error") {
		t.Errorf("output = %q, want configuration error", resp.Output)
	}
	if a.executionStore() == nil {
		t.Error("memory store not configured")
	}
}

func TestNewApp_NoStorage(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Type = "none"
	a, err := newApp(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	defer a.Close()

	if st := a.executionStore(); st != nil {
		t.Errorf("executionStore() = %v, want nil", st)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		auth       config.AuthConfig
		path       string
		header     string
		wantStatus int
	}{
		{
			name:       "none accepts anonymous",
			auth:       config.AuthConfig{Type: "none"},
			path:       "/v1/tools",
			wantStatus: http.StatusOK,
		},
		{
			name:       "apikey rejects missing key",
			auth:       apiKeyAuth(),
			path:       "/v1/tools",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "apikey accepts bearer key",
			auth:       apiKeyAuth(),
			path:       "/v1/tools",
			header:     "Bearer sk-test",
			wantStatus: http.StatusOK,
		},
		{
			name:       "apikey rejects wrong key",
			auth:       apiKeyAuth(),
			path:       "/v1/tools",
			header:     "Bearer sk-wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "health bypasses auth",
			auth:       apiKeyAuth(),
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		{
			name: "custom bypass",
			auth: func() config.AuthConfig {
				a := apiKeyAuth()
				a.Bypass = []string{"/builtin/"}
				return a
			}(),
			path:       "/builtin/runcode/status",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Auth = tt.auth
			mw, err := (&app{cfg: &cfg}).authMiddleware()
			if err != nil {
				t.Fatalf("authMiddleware() error: %v", err)
			}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func apiKeyAuth() config.AuthConfig {
	return config.AuthConfig{
		Type: "apikey",
		APIKeys: []config.APIKeyConfig{
			{Key: "sk-test", Subject: "alice", TenantID: "org-1"},
		},
	}
}

func TestRedact(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sandbox.E2B.APIKey = "e2b-secret"
	cfg.Storage.Postgres.DSN = "postgres://user:pw@db/runcode"
	cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-secret", Subject: "alice"}}

	out := redact(cfg)
	if out.Sandbox.E2B.APIKey != redacted || out.Storage.Postgres.DSN != redacted || out.Auth.APIKeys[0].Key != redacted {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.Auth.APIKeys[0].Subject != "alice" {
		t.Errorf("subject = %q, want kept", out.Auth.APIKeys[0].Subject)
	}
	if cfg.Auth.APIKeys[0].Key != "sk-secret" {
		t.Error("redact modified the input")
	}
}
