package e2b

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/runcode/pkg/sandbox"
)

// fakeE2B serves both the control plane and the code interpreter.
type fakeE2B struct {
	t          *testing.T
	createCode int
	killCode   int
	stream     string
	execDelay  time.Duration
	killed     atomic.Int32
	lastCreate createRequest
	lastCode   string
}

func (f *fakeE2B) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sandboxes", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":401,"message":"Invalid API key"}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&f.lastCreate)
		if f.createCode != 0 {
			w.WriteHeader(f.createCode)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createResponse{
			SandboxID:       "sbx123",
			EnvdAccessToken: "tok",
			EnvdVersion:     "0.2.0",
		})
	})
	mux.HandleFunc("DELETE /sandboxes/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.killed.Add(1)
		if r.PathValue("id") != "sbx123" {
			f.t.Errorf("kill id = %q", r.PathValue("id"))
		}
		code := f.killCode
		if code == 0 {
			code = http.StatusNoContent
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc("POST /execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Access-Token") != "tok" {
			f.t.Errorf("X-Access-Token = %q, want tok", r.Header.Get("X-Access-Token"))
		}
		var req executeRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.lastCode = req.Code
		if f.execDelay > 0 {
			select {
			case <-time.After(f.execDelay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(f.stream))
	})
	return mux
}

func newFake(t *testing.T, f *fakeE2B) *Backend {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	b, err := New(Config{APIKey: "test-key", APIURL: srv.URL, InterpreterURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func ndjson(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing api key")
	}

	b, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.apiURL != "https://api.e2b.app" {
		t.Errorf("apiURL = %q", b.apiURL)
	}
	if b.cfg.Template != DefaultTemplate || b.cfg.Lifetime != DefaultLifetime {
		t.Errorf("defaults not applied: %+v", b.cfg)
	}
}

func TestBackend_CreateRunKill(t *testing.T) {
	f := &fakeE2B{stream: ndjson(
		`{"type":"number_of_executions","execution_count":1}`,
		`{"type":"stdout","text":"hello\n"}`,
		`{"type":"stdout","text":"world\n"}`,
		`{"type":"result","text":"42","is_main_result":true}`,
		`{"type":"end_of_execution"}`,
	)}
	b := newFake(t, f)

	sb, err := b.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sb.ID() != "sbx123" {
		t.Errorf("ID() = %q", sb.ID())
	}
	if f.lastCreate.TemplateID != DefaultTemplate || f.lastCreate.Timeout != 300 {
		t.Errorf("create request = %+v", f.lastCreate)
	}
	if f.lastCreate.Metadata["runcode_request_id"] == "" {
		t.Error("create request has no request id metadata")
	}

	exec, err := sb.RunCode(context.Background(), "print('hello')", 5*time.Second)
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if f.lastCode != "print('hello')" {
		t.Errorf("code sent = %q", f.lastCode)
	}
	if exec.Stdout() != "hello\nworld\n" {
		t.Errorf("stdout = %q", exec.Stdout())
	}
	if exec.Text() != "42" {
		t.Errorf("Text() = %q, want 42", exec.Text())
	}
	if exec.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d", exec.ExecutionCount)
	}

	if err := sb.Kill(context.Background()); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if f.killed.Load() != 1 {
		t.Errorf("kill calls = %d, want 1", f.killed.Load())
	}
}

func TestBackend_CreateErrors(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		code    int
		wantErr error
	}{
		{name: "bad key", apiKey: "wrong", wantErr: sandbox.ErrUnauthorized},
		{name: "rate limited", apiKey: "test-key", code: http.StatusTooManyRequests, wantErr: sandbox.ErrCapacity},
		{name: "server error", apiKey: "test-key", code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeE2B{t: t, createCode: tt.code}
			srv := httptest.NewServer(f.handler())
			defer srv.Close()

			b, err := New(Config{APIKey: tt.apiKey, APIURL: srv.URL, InterpreterURL: srv.URL})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, err = b.Create(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSandbox_KillAlreadyGone(t *testing.T) {
	f := &fakeE2B{killCode: http.StatusNotFound, stream: ndjson(`{"type":"end_of_execution"}`)}
	b := newFake(t, f)

	sb, err := b.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sb.Kill(context.Background()); err != nil {
		t.Errorf("Kill of missing sandbox: %v", err)
	}
}

func TestSandbox_KillFailure(t *testing.T) {
	f := &fakeE2B{killCode: http.StatusInternalServerError}
	b := newFake(t, f)

	sb, err := b.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sb.Kill(context.Background()); err == nil {
		t.Error("expected kill error, got nil")
	}
}

func TestSandbox_RunCodeTimeout(t *testing.T) {
	f := &fakeE2B{execDelay: 2 * time.Second, stream: ndjson(`{"type":"end_of_execution"}`)}
	b := newFake(t, f)

	sb, err := b.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = sb.RunCode(context.Background(), "import time; time.sleep(10)", 100*time.Millisecond)
	if !errors.Is(err, sandbox.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestSandbox_RunCodeLanguageError(t *testing.T) {
	f := &fakeE2B{stream: ndjson(
		`{"type":"stderr","text":"warning\n"}`,
		`{"type":"error","name":"ZeroDivisionError","value":"division by zero","traceback":"Traceback..."}`,
		`{"type":"end_of_execution"}`,
	)}
	b := newFake(t, f)

	sb, _ := b.Create(context.Background())
	exec, err := sb.RunCode(context.Background(), "1/0", time.Second)
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if exec.Error == nil || exec.Error.Name != "ZeroDivisionError" || exec.Error.Value != "division by zero" {
		t.Errorf("Error = %+v", exec.Error)
	}
	if exec.Stderr() != "warning\n" {
		t.Errorf("stderr = %q", exec.Stderr())
	}
}

func TestParseStream(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		wantResults int
		wantImage   bool
	}{
		{
			name: "image result",
			input: ndjson(
				`{"type":"result","png":"iVBORw0=","text":"<Figure size 640x480 with 1 Axes>"}`,
				`{"type":"end_of_execution"}`,
			),
			wantResults: 1,
			wantImage:   true,
		},
		{
			name: "unknown events and blank lines ignored",
			input: ndjson(
				`{"type":"unexpected","foo":1}`,
				``,
				`{"type":"end_of_execution"}`,
			),
		},
		{
			name:    "missing end marker",
			input:   ndjson(`{"type":"stdout","text":"partial"}`),
			wantErr: true,
		},
		{
			name:    "malformed line",
			input:   ndjson(`{not json`, `{"type":"end_of_execution"}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := parseStream(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(exec.Results) != tt.wantResults {
				t.Errorf("len(Results) = %d, want %d", len(exec.Results), tt.wantResults)
			}
			if tt.wantImage && !exec.Results[0].HasImage() {
				t.Error("expected image result")
			}
		})
	}
}

func TestParseStream_LargeLine(t *testing.T) {
	big := strings.Repeat("A", 1<<20)
	input := ndjson(fmt.Sprintf(`{"type":"result","png":%q}`, big), `{"type":"end_of_execution"}`)

	exec, err := parseStream(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseStream: %v", err)
	}
	if len(exec.Results[0].PNG) != len(big) {
		t.Errorf("png length = %d, want %d", len(exec.Results[0].PNG), len(big))
	}
}
