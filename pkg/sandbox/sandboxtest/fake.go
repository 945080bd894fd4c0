// Package sandboxtest provides an in-memory sandbox.Backend for tests of
// packages that sit above the runner.
package sandboxtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rhuss/runcode/pkg/sandbox"
)

// Backend is a fake sandbox.Backend. By default every run prints the code
// it was given to stdout.
type Backend struct {
	// CreateErr fails every Create when set.
	CreateErr error

	// RunFn replaces the default run behaviour.
	RunFn func(ctx context.Context, code string) (*sandbox.Execution, error)

	mu      sync.Mutex
	codes   []string
	created int
	killed  int
}

var _ sandbox.Backend = (*Backend)(nil)

// Name returns "fake".
func (b *Backend) Name() string { return "fake" }

// Create returns a new fake sandbox.
func (b *Backend) Create(context.Context) (sandbox.Sandbox, error) {
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	return &fakeSandbox{id: fmt.Sprintf("fake-%d", b.created), backend: b}, nil
}

// Codes returns the code of every run so far.
func (b *Backend) Codes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.codes...)
}

// Runs returns the number of executed runs.
func (b *Backend) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.codes)
}

// Killed returns the number of killed sandboxes.
func (b *Backend) Killed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed
}

type fakeSandbox struct {
	id      string
	backend *Backend
}

func (s *fakeSandbox) ID() string { return s.id }

func (s *fakeSandbox) RunCode(ctx context.Context, code string, _ time.Duration) (*sandbox.Execution, error) {
	s.backend.mu.Lock()
	s.backend.codes = append(s.backend.codes, code)
	s.backend.mu.Unlock()

	if s.backend.RunFn != nil {
		return s.backend.RunFn(ctx, code)
	}
	return &sandbox.Execution{Logs: sandbox.Logs{Stdout: []string{code + "\n"}}}, nil
}

func (s *fakeSandbox) Kill(context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.killed++
	return nil
}

// Stdout builds an execution with the given stdout.
func Stdout(s string) *sandbox.Execution {
	return &sandbox.Execution{Logs: sandbox.Logs{Stdout: []string{s}}}
}

// WithImage builds an execution with a main result and one PNG image.
func WithImage(text, pngBase64 string) *sandbox.Execution {
	return &sandbox.Execution{Results: []sandbox.Result{
		{Text: text, IsMainResult: true},
		{PNG: pngBase64},
	}}
}
