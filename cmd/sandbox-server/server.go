package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/sandbox/sandboxserver"
)

const (
	defaultTimeoutSeconds = 30
	maxRequestBytes       = 10 << 20
	outputDirName         = "output"
)

type serverConfig struct {
	// interpreter is the command that runs the script file.
	interpreter   []string
	maxConcurrent int
	pythonIndex   string
	version       string
}

type sandboxServer struct {
	cfg      serverConfig
	slots    *semaphore.Weighted
	inFlight atomic.Int32
	start    time.Time
}

func newSandboxServer(cfg serverConfig) *sandboxServer {
	if cfg.maxConcurrent <= 0 {
		cfg.maxConcurrent = 1
	}
	return &sandboxServer{
		cfg:   cfg,
		slots: semaphore.NewWeighted(int64(cfg.maxConcurrent)),
		start: time.Now(),
	}
}

func (s *sandboxServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire(1) {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d concurrent executions)", s.cfg.maxConcurrent))
		return
	}
	defer s.slots.Release(1)
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	var req sandboxserver.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = defaultTimeoutSeconds
	}

	debug.Log("sandbox", "execute request",
		"code", debug.Truncate(req.Code, 120),
		"timeout", req.TimeoutSeconds,
		"requirements", len(req.Requirements),
		"files", len(req.Files),
	)

	resp, status, err := s.execute(r.Context(), &req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	slog.Info("execute complete",
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.ExecutionTimeMs,
		"stdout_len", len(resp.Stdout),
		"files_produced", len(resp.FilesProduced),
	)
	writeJSON(w, http.StatusOK, resp)
}

// execute runs one request in a fresh working directory. A non-nil error
// is a server-side problem reported with the returned HTTP status; code
// failures are described in the response.
func (s *sandboxServer) execute(ctx context.Context, req *sandboxserver.ExecuteRequest) (*sandboxserver.ExecuteResponse, int, error) {
	workDir, err := os.MkdirTemp("", "sandbox-exec-*")
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	outputDir := filepath.Join(workDir, outputDirName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("creating output dir: %w", err)
	}

	for name, b64 := range req.Files {
		content, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decoding file %q: %w", name, err)
		}
		// Base name only, files never leave the work dir.
		if err := os.WriteFile(filepath.Join(workDir, filepath.Base(name)), content, 0o644); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("writing file %q: %w", name, err)
		}
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	libDir := filepath.Join(workDir, ".pylibs")

	if len(req.Requirements) > 0 {
		if err := s.install(ctx, workDir, libDir, req.Requirements, timeout); err != nil {
			return &sandboxserver.ExecuteResponse{
				Status:   "error",
				Stderr:   sandboxserver.InstallFailedPrefix + err.Error(),
				ExitCode: -1,
			}, http.StatusOK, nil
		}
	}

	script := filepath.Join(workDir, "script.py")
	if err := os.WriteFile(script, []byte(req.Code), 0o644); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("writing code: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, s.cfg.interpreter[1:]...), script)
	cmd := exec.CommandContext(runCtx, s.cfg.interpreter[0], args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"OUTPUT_DIR="+outputDir,
		"PYTHONPATH="+libDir,
		"MPLBACKEND=Agg",
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	resp := &sandboxserver.ExecuteResponse{
		Status:          "success",
		ExecutionTimeMs: elapsed.Milliseconds(),
		FilesProduced:   collectOutputFiles(outputDir),
	}
	if runErr != nil {
		resp.Status = "error"
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			resp.ExitCode = -1
			if stderr.Len() > 0 && !strings.HasSuffix(stderr.String(), "\n") {
				stderr.WriteByte('\n')
			}
			fmt.Fprintf(&stderr, "%s after %d seconds", sandboxserver.TimeoutNotice, req.TimeoutSeconds)
		case errors.As(runErr, &exitErr):
			resp.ExitCode = exitErr.ExitCode()
		default:
			resp.ExitCode = -1
			if stderr.Len() == 0 {
				stderr.WriteString(runErr.Error())
			}
		}
	}
	resp.Stdout = stdout.String()
	resp.Stderr = stderr.String()
	return resp, http.StatusOK, nil
}

// install puts requirements into libDir with uv.
func (s *sandboxServer) install(ctx context.Context, workDir, libDir string, requirements []string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"pip", "install", "--system", "--target", libDir, "--index-url", s.cfg.pythonIndex}
	cmd := exec.CommandContext(ctx, "uv", append(args, requirements...)...)
	cmd.Dir = workDir

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// collectOutputFiles returns the files in dir, base64 encoded by name.
func collectOutputFiles(dir string) map[string]string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files map[string]string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if files == nil {
			files = make(map[string]string)
		}
		files[e.Name()] = base64.StdEncoding.EncodeToString(content)
	}
	return files
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sandboxserver.HealthResponse{
		Status:         "healthy",
		Mode:           "python",
		RuntimeVersion: s.cfg.version,
		Capacity:       s.cfg.maxConcurrent,
		CurrentLoad:    int(s.inFlight.Load()),
		UptimeSecs:     int64(time.Since(s.start).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
