// Command sandbox-server executes Python code in subprocesses behind the
// sandbox-server REST API. It is the runtime inside agent-sandbox pods and
// a local development backend for runcode (sandbox.backend: server).
//
// Configuration:
//
//	SANDBOX_PORT           - Listen port (default: 8080)
//	SANDBOX_PYTHON         - Python interpreter (default: python3)
//	SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 3)
//	SANDBOX_PYTHON_INDEX   - Package index for requirements (default: https://pypi.org/simple/)
//	RUNCODE_LOG_LEVEL      - Log level (default: INFO)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rhuss/runcode/pkg/debug"
)

func main() {
	debug.Init("", "", "")

	python := envOr("SANDBOX_PYTHON", "python3")
	if _, err := exec.LookPath(python); err != nil {
		slog.Error("python interpreter not found", "python", python, "error", err)
		os.Exit(1)
	}

	srv := newSandboxServer(serverConfig{
		interpreter:   []string{python},
		maxConcurrent: envOrInt("SANDBOX_MAX_CONCURRENT", 3),
		pythonIndex:   envOr("SANDBOX_PYTHON_INDEX", "https://pypi.org/simple/"),
		version:       pythonVersion(python),
	})

	port := envOr("SANDBOX_PORT", "8080")
	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sandbox server starting",
			"port", port,
			"runtime", srv.cfg.version,
			"max_concurrent", srv.cfg.maxConcurrent,
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// pythonVersion returns the first line of `python --version`.
func pythonVersion(python string) string {
	out, err := exec.Command(python, "--version").Output()
	if err != nil {
		return "unknown"
	}
	v, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return v
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid integer env var", "name", key, "value", v)
		return defaultVal
	}
	return n
}
