package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/runcode/pkg/auth"
	"github.com/rhuss/runcode/pkg/auth/apikey"
	"github.com/rhuss/runcode/pkg/auth/jwt"
	"github.com/rhuss/runcode/pkg/auth/noop"
	"github.com/rhuss/runcode/pkg/config"
	"github.com/rhuss/runcode/pkg/engine"
	"github.com/rhuss/runcode/pkg/runner"
	"github.com/rhuss/runcode/pkg/sandbox"
	"github.com/rhuss/runcode/pkg/sandbox/e2b"
	"github.com/rhuss/runcode/pkg/sandbox/kubernetes"
	"github.com/rhuss/runcode/pkg/sandbox/sandboxserver"
	"github.com/rhuss/runcode/pkg/storage/memory"
	"github.com/rhuss/runcode/pkg/storage/postgres"
	"github.com/rhuss/runcode/pkg/tools"
	"github.com/rhuss/runcode/pkg/tools/builtins/runcode"
	"github.com/rhuss/runcode/pkg/tools/registry"
	"github.com/rhuss/runcode/pkg/transport"
	transporthttp "github.com/rhuss/runcode/pkg/transport/http"
	transportmcp "github.com/rhuss/runcode/pkg/transport/mcp"
)

// pruneInterval is how often the postgres store drops expired records.
const pruneInterval = time.Hour

// store is what the server needs from an execution store.
type store interface {
	transport.ExecutionStore
	Close() error
}

// app holds the wired service.
type app struct {
	cfg      *config.Config
	runner   *runner.Runner
	registry *registry.FunctionRegistry
	engine   *engine.Engine
	store    store
	pruner   *postgres.Store
}

// newApp builds every component from the configuration. A sandbox backend
// that cannot be set up does not stop the service: run_python_code then
// reports the problem on every call.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	st, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = st

	var opts []runner.Option
	if st != nil {
		opts = append(opts, runner.WithRecorder(st))
	}
	backend, err := newBackend(cfg.Sandbox, cfg.Runner.Timeout.Std())
	if err != nil {
		backend = nil
		slog.Warn("sandbox backend unavailable, every call will report it",
			"backend", cfg.Sandbox.Backend, "error", err)
		opts = append(opts, runner.WithBackendError(err))
	}
	a.runner = runner.New(backend, runnerConfig(cfg.Runner), opts...)

	a.registry = registry.New()
	a.registry.Register(runcode.New(a.runner))

	a.engine, err = engine.New(engine.Config{
		Executors: []tools.ToolExecutor{a.registry},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	slog.Info("runcode configured",
		"backend", cfg.Sandbox.Backend,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"default_silent", cfg.Runner.DefaultSilentMode,
		"locale", cfg.Runner.Locale,
	)
	return a, nil
}

// newBackend creates the configured sandbox backend.
func newBackend(cfg config.SandboxConfig, execTimeout time.Duration) (sandbox.Backend, error) {
	switch cfg.Backend {
	case "e2b":
		if cfg.E2B.APIKey == "" {
			return nil, errors.New("E2B API key is not set (sandbox.e2b.api_key or E2B_API_KEY)")
		}
		lifetime := cfg.E2B.Lifetime.Std()
		if lifetime < execTimeout {
			lifetime = execTimeout + time.Minute
		}
		return e2b.New(e2b.Config{
			APIKey:         cfg.E2B.APIKey,
			Domain:         cfg.E2B.Domain,
			Template:       cfg.E2B.Template,
			Lifetime:       lifetime,
			APIURL:         cfg.E2B.APIURL,
			InterpreterURL: cfg.E2B.InterpreterURL,
		})
	case "server":
		return sandboxserver.New(cfg.Server.URL)
	case "kubernetes":
		scheme, err := kubernetes.NewScheme()
		if err != nil {
			return nil, err
		}
		restCfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		c, err := client.New(restCfg, client.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("creating kubernetes client: %w", err)
		}
		return kubernetes.NewClaimBackend(c, cfg.Kubernetes.Template, cfg.Kubernetes.Namespace, cfg.Kubernetes.ReadyTimeout.Std()), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Backend)
	}
}

func runnerConfig(c config.RunnerConfig) runner.Config {
	return runner.Config{
		DefaultSilent:   c.DefaultSilentMode,
		Timeout:         c.Timeout.Std(),
		OverallTimeout:  c.OverallTimeout.Std(),
		MaxOutputLength: c.MaxOutputLength,
		StripCodeFences: c.StripCodeFences,
		DedupWindow:     c.DedupWindow.Std(),
		SendImages:      c.SendImages,
		MaxImages:       c.MaxImages,
		Locale:          c.Locale,
		SystemNote:      c.SystemNote,
	}
}

// newStore opens the configured execution store. It returns nil when
// storage is disabled.
func (a *app) newStore(ctx context.Context) (store, error) {
	switch a.cfg.Storage.Type {
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", a.cfg.Storage.MaxSize)
		return memory.New(a.cfg.Storage.MaxSize), nil
	case "postgres":
		pg := a.cfg.Storage.Postgres
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			MigrateOnStart: pg.MigrateOnStart,
			Retention:      pg.Retention.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		if pg.Retention > 0 {
			a.pruner = s
		}
		slog.Info("storage enabled", "type", "postgres", "retention", pg.Retention)
		return s, nil
	default:
		slog.Info("storage disabled")
		return nil, nil
	}
}

// executionStore returns the store as the transport interface, nil when
// storage is disabled. A nil store must not become a non-nil interface.
func (a *app) executionStore() transport.ExecutionStore {
	if a.store == nil {
		return nil
	}
	return a.store
}

// background starts the dedup sweeper and the retention pruner.
func (a *app) background(ctx context.Context) {
	go a.runner.Dedup().Run(ctx, 0)

	if a.pruner == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := a.pruner.Prune(ctx)
				if err != nil {
					slog.Warn("pruning executions failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("pruned executions", "count", n)
				}
			}
		}
	}()
}

// authMiddleware builds the HTTP auth middleware. It returns nil when
// authentication is disabled and no rate limit is configured.
func (a *app) authMiddleware() (func(http.Handler) http.Handler, error) {
	ac := a.cfg.Auth
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch ac.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(ac.APIKeys))
		for _, k := range ac.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{auth.TenantMetadataKey: k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:      ac.JWT.Issuer,
			Audience:    ac.JWT.Audience,
			JWKSURL:     ac.JWT.JWKSURL,
			UserClaim:   ac.JWT.UserClaim,
			TenantClaim: ac.JWT.TenantClaim,
			TierClaim:   ac.JWT.TierClaim,
			ScopesClaim: ac.JWT.ScopesClaim,
			CacheTTL:    ac.JWT.CacheTTL.Std(),
		})}
	default:
		return nil, fmt.Errorf("unknown auth type %q", ac.Type)
	}

	var limiter auth.RateLimiter
	if ac.RateLimit.DefaultRPM > 0 || len(ac.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(ac.RateLimit.Tiers))
		for name, rpm := range ac.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, ac.RateLimit.DefaultRPM)
	}

	bypass := ac.Bypass
	if len(bypass) == 0 {
		bypass = auth.DefaultBypassEndpoints
	}
	return auth.Middleware(chain, limiter, bypass), nil
}

// serveHTTP runs the HTTP API, the builtin routes and the MCP endpoint
// until ctx is done.
func (a *app) serveHTTP(ctx context.Context) error {
	sc := a.cfg.Server
	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(sc.Port)),
		transporthttp.WithMaxBodySize(sc.MaxBodySize),
		transporthttp.WithShutdownTimeout(sc.ShutdownTimeout.Std()),
		transporthttp.WithTimeouts(sc.ReadTimeout.Std(), sc.WriteTimeout.Std()),
		transporthttp.WithMetrics(a.cfg.Observability.Metrics.Enabled),
		transporthttp.WithMount("/builtin/", a.registry.HTTPHandler()),
	}

	mw, err := a.authMiddleware()
	if err != nil {
		return err
	}
	opts = append(opts, transporthttp.WithHTTPMiddleware(mw))

	if st := a.executionStore(); st != nil {
		opts = append(opts, transporthttp.WithReadiness(st.HealthCheck))
	}

	if a.cfg.MCP.Enabled {
		ms, err := a.newMCPServer(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, transporthttp.WithMount(a.cfg.MCP.Path, ms.Handler()))
		slog.Info("mcp endpoint enabled", "path", a.cfg.MCP.Path)
	}

	a.background(ctx)
	return transporthttp.NewServer(a.engine, a.executionStore(), opts...).Run(ctx)
}

// serveStdio runs a single MCP session over stdin/stdout. Logs go to
// stderr.
func (a *app) serveStdio(ctx context.Context) error {
	ms, err := a.newMCPServer(ctx)
	if err != nil {
		return err
	}
	a.background(ctx)
	slog.Info("serving mcp over stdio")
	return ms.RunStdio(ctx)
}

func (a *app) newMCPServer(ctx context.Context) (*transportmcp.Server, error) {
	ms, err := transportmcp.New(ctx, a.engine, transportmcp.Options{
		Name:    "runcode",
		Version: version,
		Middleware: []transport.Middleware{
			transport.Recovery(),
			transport.RequestID(),
			transport.Logging(slog.Default()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating mcp server: %w", err)
	}
	return ms, nil
}

// Close releases the registry and the store.
func (a *app) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}
}
