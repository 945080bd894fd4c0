package sandboxserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rhuss/runcode/pkg/sandbox"
)

func TestClient_Execute(t *testing.T) {
	reply := func(status int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}
	}
	isErr := func(target error) func(*testing.T, *ExecuteResponse, error) {
		return func(t *testing.T, _ *ExecuteResponse, err error) {
			if target == nil && err == nil {
				t.Fatal("expected an error")
			}
			if target != nil && !errors.Is(err, target) {
				t.Fatalf("err = %v, want %v", err, target)
			}
		}
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(*testing.T, *ExecuteResponse, error)
	}{
		{
			name:    "output comes back",
			handler: reply(http.StatusOK, `{"status":"success","stdout":"42\n","exit_code":0}`),
			check: func(t *testing.T, resp *ExecuteResponse, err error) {
				if err != nil {
					t.Fatal(err)
				}
				if resp.Status != "success" || resp.Stdout != "42\n" {
					t.Errorf("resp = %+v", resp)
				}
			},
		},
		{
			name:    "a traceback is a response, not an error",
			handler: reply(http.StatusOK, `{"status":"error","stderr":"NameError: name 'x' is not defined","exit_code":1}`),
			check: func(t *testing.T, resp *ExecuteResponse, err error) {
				if err != nil {
					t.Fatal(err)
				}
				if resp.ExitCode != 1 || resp.Stderr == "" {
					t.Errorf("resp = %+v", resp)
				}
			},
		},
		{
			name:    "429 maps to capacity",
			handler: reply(http.StatusTooManyRequests, `{"error":"at capacity"}`),
			check:   isErr(sandbox.ErrCapacity),
		},
		{
			name:    "500 fails",
			handler: reply(http.StatusInternalServerError, `{"error":"internal error"}`),
			check:   isErr(nil),
		},
		{
			name:    "garbage body fails",
			handler: reply(http.StatusOK, `{invalid json`),
			check:   isErr(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			resp, err := NewClient().Execute(context.Background(), srv.URL, &ExecuteRequest{Code: "print(42)", TimeoutSeconds: 5})
			tt.check(t, resp, err)
		})
	}
}

func TestClient_Execute_SendsRequestBody(t *testing.T) {
	var got ExecuteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			t.Errorf("path = %q, want /execute", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ExecuteResponse{Status: "success"})
	}))
	defer srv.Close()

	_, err := NewClient().Execute(context.Background(), srv.URL+"/", &ExecuteRequest{Code: "1+1", TimeoutSeconds: 7})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Code != "1+1" || got.TimeoutSeconds != 7 {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_Execute_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewClient().Execute(ctx, srv.URL, &ExecuteRequest{Code: "import time; time.sleep(10)", TimeoutSeconds: 1})
	if !errors.Is(err, sandbox.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestClient_Execute_Unreachable(t *testing.T) {
	_, err := NewClient().Execute(context.Background(), "http://localhost:1", &ExecuteRequest{Code: "print(1)", TimeoutSeconds: 1})
	if err == nil {
		t.Error("expected error for unreachable server, got nil")
	}
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Mode: "python", Capacity: 3})
	}))
	defer srv.Close()

	h, err := NewClient().Health(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.Capacity != 3 {
		t.Errorf("health = %+v", h)
	}
}

func TestClient_WithHTTPClient(t *testing.T) {
	var used bool
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used = true
		return http.DefaultTransport.RoundTrip(r)
	})}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	}))
	defer srv.Close()

	if _, err := NewClient(WithHTTPClient(hc)).Health(context.Background(), srv.URL); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !used {
		t.Error("custom HTTP client was not used")
	}
}

func TestClient_Health_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient().Health(context.Background(), srv.URL); err == nil {
		t.Error("expected error for HTTP 503")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
