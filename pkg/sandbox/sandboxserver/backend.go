package sandboxserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/runcode/pkg/sandbox"
)

// Ensure Backend implements sandbox.Backend.
var _ sandbox.Backend = (*Backend)(nil)

// Backend is a sandbox.Backend for a sandbox server at a fixed URL.
// Create does not provision anything remotely; every sandbox shares the
// same server, which isolates executions in per-request temp dirs.
type Backend struct {
	url    string
	client *Client
}

// New creates a Backend for the sandbox server at url.
func New(url string) (*Backend, error) {
	if url == "" {
		return nil, fmt.Errorf("sandboxserver: url is required")
	}
	return &Backend{url: url, client: NewClient()}, nil
}

// Name returns "server".
func (b *Backend) Name() string { return "server" }

// Create returns a handle bound to the static server URL.
func (b *Backend) Create(_ context.Context) (sandbox.Sandbox, error) {
	return NewSandbox("srv-"+uuid.NewString(), b.url, b.client, nil), nil
}

// Sandbox is a sandbox.Sandbox backed by a sandbox server URL.
type Sandbox struct {
	id      string
	url     string
	client  *Client
	release func(ctx context.Context) error
}

// NewSandbox binds a sandbox ID to a server URL. release is called by Kill
// and may be nil when there is nothing to clean up.
func NewSandbox(id, url string, client *Client, release func(ctx context.Context) error) *Sandbox {
	return &Sandbox{id: id, url: url, client: client, release: release}
}

// ID returns the sandbox identifier.
func (s *Sandbox) ID() string { return s.id }

// URL returns the sandbox server base URL.
func (s *Sandbox) URL() string { return s.url }

// RunCode posts the code to the sandbox server.
func (s *Sandbox) RunCode(ctx context.Context, code string, timeout time.Duration) (*sandbox.Execution, error) {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = 30
	}

	resp, err := s.client.Execute(ctx, s.url, &ExecuteRequest{
		Code:           code,
		TimeoutSeconds: secs,
	})
	if err != nil {
		return nil, err
	}
	return ToExecution(resp), nil
}

// Kill runs the release hook, if any.
func (s *Sandbox) Kill(ctx context.Context) error {
	if s.release == nil {
		return nil
	}
	return s.release(ctx)
}

// ToExecution converts a sandbox server response into an Execution.
// Image files in files_produced become image results in name order.
func ToExecution(resp *ExecuteResponse) *sandbox.Execution {
	exec := &sandbox.Execution{}
	if resp.Stdout != "" {
		exec.Logs.Stdout = []string{resp.Stdout}
	}
	if resp.Stderr != "" {
		exec.Logs.Stderr = []string{resp.Stderr}
	}

	names := make([]string, 0, len(resp.FilesProduced))
	for name := range resp.FilesProduced {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := resp.FilesProduced[name]
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png":
			exec.Results = append(exec.Results, sandbox.Result{Text: name, PNG: data})
		case ".jpg", ".jpeg":
			exec.Results = append(exec.Results, sandbox.Result{Text: name, JPEG: data})
		case ".svg":
			raw, err := base64.StdEncoding.DecodeString(data)
			if err != nil {
				slog.Warn("skipping undecodable svg output", "file", name, "error", err)
				continue
			}
			exec.Results = append(exec.Results, sandbox.Result{Text: name, SVG: string(raw)})
		}
	}

	if resp.Status == "error" {
		if resp.ExitCode == -1 && !strings.HasPrefix(resp.Stderr, InstallFailedPrefix) && strings.Contains(resp.Stderr, TimeoutNotice) {
			exec.Error = &sandbox.ExecutionError{Name: "TimeoutError", Value: timeoutLine(resp.Stderr)}
		} else {
			exec.Error = &sandbox.ExecutionError{
				Name:  "ExitError",
				Value: fmt.Sprintf("process exited with code %d", resp.ExitCode),
			}
		}
	}

	return exec
}

// timeoutLine returns the notice line from stderr, leaving out what the
// code printed before it was stopped.
func timeoutLine(stderr string) string {
	i := strings.LastIndex(stderr, TimeoutNotice)
	line, _, _ := strings.Cut(stderr[i:], "\n")
	return strings.TrimSpace(line)
}
