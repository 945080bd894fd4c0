package api

import (
	"strings"
	"testing"
)

func TestValidateToolCallRequest(t *testing.T) {
	cfg := DefaultValidationConfig()

	tests := []struct {
		name      string
		req       ToolCallRequest
		wantParam string
	}{
		{
			name: "valid",
			req:  ToolCallRequest{Name: "run_python_code", Arguments: Arguments(`{"code":"1"}`)},
		},
		{
			name:      "missing name",
			req:       ToolCallRequest{},
			wantParam: "name",
		},
		{
			name:      "bad name",
			req:       ToolCallRequest{Name: "run code!"},
			wantParam: "name",
		},
		{
			name:      "arguments too large",
			req:       ToolCallRequest{Name: "run_python_code", Arguments: Arguments(`{"code":"` + strings.Repeat("x", cfg.MaxArgumentsSize) + `"}`)},
			wantParam: "arguments",
		},
		{
			name:      "session id too long",
			req:       ToolCallRequest{Name: "run_python_code", SessionID: strings.Repeat("s", 300)},
			wantParam: "session_id",
		},
		{
			name:      "too many allowed tools",
			req:       ToolCallRequest{Name: "run_python_code", AllowedTools: make([]string, 65)},
			wantParam: "allowed_tools",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToolCallRequest(&tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error on %q, got nil", tt.wantParam)
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
		})
	}
}

func TestValidateListLimit(t *testing.T) {
	for _, limit := range []int{0, 1, 100} {
		if err := ValidateListLimit(limit); err != nil {
			t.Errorf("ValidateListLimit(%d) = %v, want nil", limit, err)
		}
	}
	for _, limit := range []int{-1, 101} {
		if err := ValidateListLimit(limit); err == nil {
			t.Errorf("ValidateListLimit(%d) = nil, want error", limit)
		}
	}
}
