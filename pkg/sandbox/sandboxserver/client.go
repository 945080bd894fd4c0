package sandboxserver

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

	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/sandbox"
)

// maxResponseBytes bounds a sandbox-server reply. Produced files travel
// base64-encoded inside it.
const maxResponseBytes = 64 << 20

// Client talks to the sandbox-server REST API. One Client serves any
// number of servers; the base URL is passed per call.
type Client struct {
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client whose HTTP timeout is a backstop only. The
// execution timeout travels in the request and the caller's context.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{http: &http.Client{Timeout: 120 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs req on the server at baseURL. A finished run is returned
// whatever its exit code; errors mean the server could not run it. A full
// server yields sandbox.ErrCapacity and an expired context
// sandbox.ErrTimeout.
func (c *Client) Execute(ctx context.Context, baseURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	debug.Log("sandbox", "sandbox-server request", "url", baseURL, "timeout", req.TimeoutSeconds)

	var out ExecuteResponse
	if err := c.do(ctx, http.MethodPost, endpoint(baseURL, "/execute"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reads GET /health.
func (c *Client) Health(ctx context.Context, baseURL string) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, endpoint(baseURL, "/health"), nil, &out); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("sandbox request: %w", sandbox.ErrTimeout)
		}
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("sandbox server (HTTP 429): %w", sandbox.ErrCapacity)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(data), 200))
	case len(data) > maxResponseBytes:
		return fmt.Errorf("sandbox response exceeds %d bytes", maxResponseBytes)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + path
}
