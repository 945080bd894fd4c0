// Package e2b implements sandbox.Backend on top of the E2B cloud.
//
// Sandboxes are created and killed through the E2B control plane REST API.
// Code runs through the code interpreter daemon inside the sandbox, which
// answers POST /execute with a stream of newline-delimited JSON events.
package e2b

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/sandbox"
)

// Defaults for Config fields left empty.
const (
	DefaultDomain   = "e2b.app"
	DefaultTemplate = "code-interpreter-v1"
	DefaultLifetime = 300 * time.Second

	// interpreterPort is the port of the code interpreter inside a sandbox.
	interpreterPort = 49999
)

// Config holds E2B connection settings.
type Config struct {
	// APIKey authenticates against the control plane. Required.
	APIKey string

	// Domain is the E2B domain (default "e2b.app").
	Domain string

	// Template is the sandbox template ID (default "code-interpreter-v1").
	Template string

	// Lifetime is how long E2B keeps an unkilled sandbox alive.
	Lifetime time.Duration

	// APIURL overrides the control plane URL (default https://api.{Domain}).
	APIURL string

	// InterpreterURL overrides the code interpreter URL for every sandbox.
	// Used for self-hosted deployments and tests.
	InterpreterURL string

	// HTTPClient is used for all requests. Defaults to a client without a
	// global timeout; requests are bounded by their contexts.
	HTTPClient *http.Client
}

// Ensure Backend implements sandbox.Backend.
var _ sandbox.Backend = (*Backend)(nil)

// Backend provisions E2B sandboxes.
type Backend struct {
	cfg    Config
	apiURL string
	client *http.Client
}

// New creates an E2B backend. An empty API key is rejected.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("e2b: api key is required")
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api." + cfg.Domain
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Backend{
		cfg:    cfg,
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: client,
	}, nil
}

// Name returns "e2b".
func (b *Backend) Name() string { return "e2b" }

// Create provisions a sandbox from the configured template.
func (b *Backend) Create(ctx context.Context) (sandbox.Sandbox, error) {
	reqID := uuid.NewString()
	body, err := json.Marshal(createRequest{
		TemplateID: b.cfg.Template,
		Timeout:    int(b.cfg.Lifetime.Seconds()),
		Metadata:   map[string]string{"runcode_request_id": reqID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/sandboxes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", b.cfg.APIKey)

	debug.Log("sandbox", "e2b create", "template", b.cfg.Template, "request_id", reqID)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr(ctx, "create sandbox", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read create response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, statusError("create sandbox", resp.StatusCode, respBody)
	}

	var out createResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if out.SandboxID == "" {
		return nil, fmt.Errorf("create sandbox: response has no sandboxID")
	}

	domain := out.Domain
	if domain == "" {
		domain = b.cfg.Domain
	}
	interpreterURL := b.cfg.InterpreterURL
	if interpreterURL == "" {
		interpreterURL = fmt.Sprintf("https://%d-%s.%s", interpreterPort, out.SandboxID, domain)
	}

	debug.Log("sandbox", "e2b sandbox created", "sandbox_id", out.SandboxID, "envd", out.EnvdVersion)

	return &Sandbox{
		id:             out.SandboxID,
		accessToken:    out.EnvdAccessToken,
		interpreterURL: strings.TrimSuffix(interpreterURL, "/"),
		backend:        b,
	}, nil
}

// Sandbox is a running E2B sandbox.
type Sandbox struct {
	id             string
	accessToken    string
	interpreterURL string
	backend        *Backend
}

// ID returns the E2B sandbox ID.
func (s *Sandbox) ID() string { return s.id }

// RunCode executes code in the sandbox's default Python context.
func (s *Sandbox) RunCode(ctx context.Context, code string, timeout time.Duration) (*sandbox.Execution, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(executeRequest{Code: code})
	if err != nil {
		return nil, fmt.Errorf("marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.interpreterURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.accessToken != "" {
		httpReq.Header.Set("X-Access-Token", s.accessToken)
	}

	resp, err := s.backend.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportErr(ctx, "run code", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusBadGateway {
			return nil, fmt.Errorf("run code in %s: %w", s.id, sandbox.ErrSandboxNotFound)
		}
		return nil, statusError("run code", resp.StatusCode, respBody)
	}

	exec, err := parseStream(resp.Body)
	if err != nil {
		return nil, wrapTransportErr(ctx, "run code", err)
	}
	return exec, nil
}

// Kill deletes the sandbox. A sandbox that no longer exists is not an error.
func (s *Sandbox) Kill(ctx context.Context) error {
	b := s.backend
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.apiURL+"/sandboxes/"+s.id, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("X-API-Key", b.cfg.APIKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return wrapTransportErr(ctx, "kill sandbox", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		debug.Log("sandbox", "e2b sandbox killed", "sandbox_id", s.id, "status", resp.StatusCode)
		return nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError("kill sandbox", resp.StatusCode, respBody)
	}
}

// statusError maps a non-success HTTP status to an error, wrapping the
// sandbox sentinels where one applies.
func statusError(op string, status int, body []byte) error {
	msg := debug.Truncate(strings.TrimSpace(string(body)), 200)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s (HTTP %d): %w", op, status, sandbox.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s (HTTP %d): %w", op, status, sandbox.ErrCapacity)
	case http.StatusNotFound:
		return fmt.Errorf("%s (HTTP %d): %w", op, status, sandbox.ErrSandboxNotFound)
	default:
		return fmt.Errorf("%s: e2b returned HTTP %d: %s", op, status, msg)
	}
}

// wrapTransportErr turns an expired context into sandbox.ErrTimeout.
func wrapTransportErr(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, sandbox.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
