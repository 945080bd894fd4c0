package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/storage"
)

func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		err        *api.APIError
		wantStatus int
	}{
		{api.NewInvalidRequestError("code", "is required"), http.StatusBadRequest},
		{api.NewUnauthorizedError("missing key"), http.StatusUnauthorized},
		{api.NewNotFoundError("no such execution"), http.StatusNotFound},
		{api.NewConflictError("exists"), http.StatusConflict},
		{api.NewTooManyRequestsError("slow down"), http.StatusTooManyRequests},
		{api.NewSandboxError("unreachable"), http.StatusBadGateway},
		{api.NewServerError("boom"), http.StatusInternalServerError},
		{&api.APIError{Type: "made_up", Message: "?"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAPIError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var resp api.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if *resp.Error != *tt.err {
				t.Errorf("body = %+v, want %+v", resp.Error, tt.err)
			}
		})
	}
}

func TestWriteErrorResponse_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, api.NewInvalidRequestError("body", "too large"), http.StatusRequestEntityTooLarge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestAsAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType api.ErrorType
	}{
		{"api error kept", api.NewInvalidRequestError("code", "bad"), api.ErrorTypeInvalidRequest},
		{"wrapped not found", fmt.Errorf("get exec_1: %w", storage.ErrNotFound), api.ErrorTypeNotFound},
		{"conflict", fmt.Errorf("save: %w", storage.ErrConflict), api.ErrorTypeConflict},
		{"plain error", errors.New("connection reset"), api.ErrorTypeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AsAPIError(tt.err); got.Type != tt.wantType {
				t.Errorf("AsAPIError() type = %q, want %q", got.Type, tt.wantType)
			}
		})
	}
}
