package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/runcode/pkg/observability"
	"github.com/rhuss/runcode/pkg/transport"
)

// Server is the runcode HTTP front: the tool-call API, operational
// endpoints and any mounted handlers, with graceful shutdown.
type Server struct {
	srv     *http.Server
	adapter *Adapter
	opts    serverOptions
}

type mount struct {
	pattern string
	handler http.Handler
}

type serverOptions struct {
	addr            string
	maxBodySize     int64
	shutdownTimeout time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	httpMiddleware  []func(http.Handler) http.Handler
	ready           func(ctx context.Context) error
	noMetrics       bool
	mounts          []mount
}

// ServerOption configures a Server.
type ServerOption func(*serverOptions)

func WithAddr(addr string) ServerOption {
	return func(o *serverOptions) { o.addr = addr }
}

func WithMaxBodySize(n int64) ServerOption {
	return func(o *serverOptions) { o.maxBodySize = n }
}

// WithShutdownTimeout bounds how long in-flight calls may run after the
// server stops accepting connections.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.shutdownTimeout = d }
}

// WithTimeouts sets the read and write deadlines of the HTTP server.
// The write timeout must cover the longest sandbox execution.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *serverOptions) { o.readTimeout, o.writeTimeout = read, write }
}

// WithHTTPMiddleware appends handler wrappers such as authentication. The
// first one given sees the request first.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(o *serverOptions) { o.httpMiddleware = append(o.httpMiddleware, mw...) }
}

// WithMetrics toggles GET /metrics.
func WithMetrics(enabled bool) ServerOption {
	return func(o *serverOptions) { o.noMetrics = !enabled }
}

// WithReadiness sets the check behind GET /readyz. Without one the server
// is always ready.
func WithReadiness(check func(ctx context.Context) error) ServerOption {
	return func(o *serverOptions) { o.ready = check }
}

// WithMount adds a handler under a ServeMux pattern, e.g. "/builtin/" or
// "/mcp".
func WithMount(pattern string, h http.Handler) ServerOption {
	return func(o *serverOptions) { o.mounts = append(o.mounts, mount{pattern, h}) }
}

// NewServer builds the server for svc. store may be nil, which disables
// execution history. Every tool call runs behind panic recovery, a
// request ID and an access log line.
func NewServer(svc transport.ToolService, store transport.ExecutionStore, opts ...ServerOption) *Server {
	o := serverOptions{
		addr:            ":8080",
		maxBodySize:     defaultMaxBodySize,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{opts: o}
	s.adapter = NewAdapter(svc, store, Config{MaxBodySize: o.maxBodySize},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(slog.Default()),
	)
	s.adapter.Handle("GET /healthz", http.HandlerFunc(healthz))
	s.adapter.Handle("GET /readyz", http.HandlerFunc(s.readyz))
	if !o.noMetrics {
		s.adapter.Handle("GET /metrics", promhttp.Handler())
	}
	for _, m := range o.mounts {
		s.adapter.Handle(m.pattern, m.handler)
	}

	s.srv = &http.Server{
		Addr:              o.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       o.readTimeout,
		WriteTimeout:      o.writeTimeout,
	}
	return s
}

// Handler is the complete request path: request ID, then the HTTP
// middleware, then metrics, then the mux.
func (s *Server) Handler() http.Handler {
	// Metrics must see the mux directly to read the matched pattern.
	h := observability.MetricsMiddleware(s.adapter.mux)
	for i := len(s.opts.httpMiddleware) - 1; i >= 0; i-- {
		h = s.opts.httpMiddleware[i](h)
	}
	return httpRequestIDMiddleware(h)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.opts.ready(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready\n"))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.addr)
	if err != nil {
		return err
	}
	return s.ServeOn(ctx, ln)
}

// ServeOn serves on ln until ctx is done or serving fails, then drains
// in-flight requests for at most the shutdown timeout.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
		defer cancel()

		slog.Info("draining connections", "timeout", s.opts.shutdownTimeout)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown incomplete", "error", err)
			return err
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}
