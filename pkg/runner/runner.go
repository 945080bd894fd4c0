// Package runner implements the run_python_code tool: it strips Markdown
// fences from model-supplied code, answers repeated calls from a
// per-session cache, runs the code in a fresh sandbox (create, run, kill)
// under one overall timeout, and formats the execution into the text that
// goes back to the model or straight to the user.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/message"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/observability"
	"github.com/rhuss/runcode/pkg/sandbox"
	"github.com/rhuss/runcode/pkg/storage"
)

// killTimeout bounds the sandbox kill issued after every run.
const killTimeout = 10 * time.Second

// Delivery tells the host where the outcome text goes.
type Delivery = api.Delivery

const (
	// DeliverModel returns the text to the model as the tool result.
	DeliverModel = api.DeliveryModel

	// DeliverUser sends the text to the user and ends the model turn.
	DeliverUser = api.DeliveryUser
)

// Config controls a Runner.
type Config struct {
	// DefaultSilent is the delivery mode for calls that do not set one.
	// Silent calls return their output to the model.
	DefaultSilent bool

	// Timeout is the execution timeout passed to the sandbox.
	Timeout time.Duration

	// OverallTimeout bounds create plus run. Defaults to Timeout + 30s.
	OverallTimeout time.Duration

	// MaxOutputLength is the output limit in characters. <= 0 disables it.
	MaxOutputLength int

	// StripCodeFences removes Markdown fences around the code.
	StripCodeFences bool

	// DedupWindow is how long a completed result answers repeated calls.
	// <= 0 disables duplicate detection.
	DedupWindow time.Duration

	// SendImages attaches generated images to the outcome.
	SendImages bool

	// MaxImages caps attached images. <= 0 means no limit.
	MaxImages int

	// Locale selects the output language ("en" or "zh").
	Locale string

	// SystemNote appends the do-not-rerun hint to silent outputs.
	SystemNote bool
}

// DefaultConfig returns the default runner settings.
func DefaultConfig() Config {
	return Config{
		DefaultSilent:   true,
		Timeout:         30 * time.Second,
		MaxOutputLength: 2000,
		StripCodeFences: true,
		DedupWindow:     60 * time.Second,
		SendImages:      true,
		MaxImages:       4,
		Locale:          "en",
		SystemNote:      true,
	}
}

// Request is one run_python_code invocation.
type Request struct {
	// SessionID scopes duplicate detection, typically the conversation.
	SessionID string

	// Code is the Python source as produced by the model.
	Code string

	// Silent overrides Config.DefaultSilent when set.
	Silent *bool
}

// Outcome is the result of a Run.
type Outcome struct {
	// Text is the final formatted output.
	Text string

	// Delivery says whether Text goes to the model or the user.
	Delivery Delivery

	// Images are generated images, when image sending is enabled.
	Images []Image

	Status      api.ExecutionStatus
	Duplicate   bool
	SandboxID   string
	ExecutionID string
	Duration    time.Duration
	Truncated   bool
}

// Recorder persists execution records.
type Recorder interface {
	SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder stores a record of every sandbox execution.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithBackendError makes every call fail with a configuration error. Used
// when the backend could not be set up, e.g. a missing API key, so the
// model sees the problem instead of the service refusing to start.
func WithBackendError(err error) Option {
	return func(r *Runner) { r.backendErr = err }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes code through a sandbox backend.
type Runner struct {
	backend    sandbox.Backend
	backendErr error
	cfg        Config
	printer    *message.Printer
	dedup      *Dedup
	flights    flights
	recorder   Recorder
	now        func() time.Time
}

// New creates a Runner. backend may be nil, in which case every call
// returns a configuration error.
func New(backend sandbox.Backend, cfg Config, opts ...Option) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = cfg.Timeout + 30*time.Second
	}

	r := &Runner{
		backend: backend,
		cfg:     cfg,
		printer: NewPrinter(cfg.Locale),
		dedup:   NewDedup(cfg.DedupWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dedup != nil {
		r.dedup.now = r.now
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// BackendName returns the backend name, or "" when none is configured.
func (r *Runner) BackendName() string {
	if r.backend == nil {
		return ""
	}
	return r.backend.Name()
}

// Dedup returns the duplicate cache, nil when disabled.
func (r *Runner) Dedup() *Dedup { return r.dedup }

// Run executes one tool call. It never returns an error: every failure is
// described in the outcome text so the model or user can act on it.
func (r *Runner) Run(ctx context.Context, req Request) *Outcome {
	silent := r.cfg.DefaultSilent
	if req.Silent != nil {
		silent = *req.Silent
	}

	slog.Info("code execution requested",
		"session", req.SessionID,
		"silent", silent,
		"code", debug.Truncate(req.Code, 50),
	)

	if r.backend == nil || r.backendErr != nil {
		reason := r.printer.Sprintf(msgNoBackend)
		if r.backendErr != nil {
			reason = r.backendErr.Error()
		}
		slog.Error("code execution rejected: sandbox backend not configured", "reason", reason)
		return withDelivery(&Outcome{
			Text:   r.printer.Sprintf(msgConfigError, reason),
			Status: api.ExecutionStatusFailure,
		}, silent)
	}

	code := req.Code
	if r.cfg.StripCodeFences {
		code = StripCodeFences(code)
	}
	if strings.TrimSpace(code) == "" {
		return withDelivery(&Outcome{
			Text:   r.printer.Sprintf(msgEmptyCode),
			Status: api.ExecutionStatusFailure,
		}, silent)
	}

	key := DedupKey(req.SessionID, code)
	if cached, age, ok := r.dedup.Lookup(key); ok {
		return r.deliver(r.duplicate(cached, age), silent)
	}

	f, leader := r.flights.join(ctx, key, func(ctx context.Context) *Outcome {
		out := r.execute(ctx, req.SessionID, code)
		if out.Status.Completed() {
			r.dedup.Store(key, *out)
		}
		return out
	})
	select {
	case <-f.done:
		r.flights.leave(key, f, nil)
	case <-ctx.Done():
		r.flights.leave(key, f, context.Cause(ctx))
		return r.abandoned(ctx, silent)
	}
	out := f.out

	if !leader && out.Status.Completed() {
		// Another call with the same code in this session was already in
		// flight; it ran the code, this one only reports it.
		return r.deliver(r.duplicate(*out, 0), silent)
	}

	result := *out
	return r.deliver(&result, silent)
}

// abandoned is the answer for a caller whose context ended before the
// execution did. Other callers waiting on the same execution still get
// its result.
func (r *Runner) abandoned(ctx context.Context, silent bool) *Outcome {
	cause := context.Cause(ctx)
	slog.Warn("caller stopped waiting for code execution", "cause", cause)
	out := &Outcome{
		Text:   r.printer.Sprintf(msgRuntimeError, cause.Error()),
		Status: api.ExecutionStatusFailure,
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		out.Status = api.ExecutionStatusTimeout
	}
	return withDelivery(out, silent)
}

// execute runs code in a fresh sandbox and formats the result. The
// returned outcome carries the final truncated text without the silent
// mode note.
func (r *Runner) execute(ctx context.Context, sessionID, code string) *Outcome {
	backend := r.backend.Name()
	start := r.now()
	out := &Outcome{ExecutionID: api.NewExecutionID()}

	observability.ExecutionsInFlight.Inc()
	defer observability.ExecutionsInFlight.Dec()

	exec, sandboxID, err := r.roundTrip(ctx, backend, code)
	out.SandboxID = sandboxID
	out.Duration = r.now().Sub(start)

	var text string
	switch {
	case err != nil && errors.Is(err, sandbox.ErrTimeout):
		slog.Warn("code execution timed out", "backend", backend, "sandbox", sandboxID, "error", err)
		text = r.printer.Sprintf(msgTimeout, strconv.Itoa(int(r.cfg.Timeout.Seconds())))
		out.Status = api.ExecutionStatusTimeout
	case err != nil:
		slog.Error("sandbox runtime error", "backend", backend, "sandbox", sandboxID, "error", err)
		text = r.printer.Sprintf(msgRuntimeError, err.Error())
		out.Status = api.ExecutionStatusFailure
	default:
		text = Format(exec, r.printer)
		switch {
		case exec.Error == nil:
			out.Status = api.ExecutionStatusSuccess
		case exec.Error.Name == "TimeoutError":
			out.Status = api.ExecutionStatusTimeout
		default:
			out.Status = api.ExecutionStatusError
		}
		if r.cfg.SendImages {
			out.Images = ExtractImages(exec, r.cfg.MaxImages)
		}
	}

	kept, omitted := Truncate(text, r.cfg.MaxOutputLength)
	if omitted > 0 {
		text = kept + r.printer.Sprintf(msgTruncated, strconv.Itoa(omitted))
		out.Truncated = true
		observability.OutputTruncatedTotal.Inc()
	}
	out.Text = text

	observability.ExecutionsTotal.WithLabelValues(backend, string(out.Status)).Inc()
	observability.ExecutionDuration.WithLabelValues(backend).Observe(out.Duration.Seconds())

	slog.Info("code execution finished",
		"backend", backend,
		"sandbox", sandboxID,
		"execution_id", out.ExecutionID,
		"status", out.Status,
		"duration", out.Duration,
		"images", len(out.Images),
		"truncated", out.Truncated,
	)

	r.record(ctx, sessionID, code, out)
	return out
}

// roundTrip creates a sandbox, runs code and kills the sandbox. Create and
// run share one deadline; kill always runs with its own.
func (r *Runner) roundTrip(ctx context.Context, backend, code string) (*sandbox.Execution, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OverallTimeout)
	defer cancel()

	debug.Log("runner", "creating sandbox", "backend", backend)
	sb, err := r.backend.Create(ctx)
	observability.SandboxOperationsTotal.WithLabelValues(backend, observability.OpCreate, observability.OpStatus(err)).Inc()
	if err != nil {
		return nil, "", timeoutAware(ctx, fmt.Errorf("create sandbox: %w", err))
	}

	defer func() {
		killCtx, killCancel := context.WithTimeout(context.WithoutCancel(ctx), killTimeout)
		defer killCancel()
		kerr := sb.Kill(killCtx)
		observability.SandboxOperationsTotal.WithLabelValues(backend, observability.OpKill, observability.OpStatus(kerr)).Inc()
		if kerr != nil {
			slog.Warn("failed to kill sandbox", "backend", backend, "sandbox", sb.ID(), "error", kerr)
			return
		}
		debug.Log("runner", "sandbox killed", "sandbox", sb.ID())
	}()

	debug.Log("runner", "running code", "sandbox", sb.ID(), "timeout", r.cfg.Timeout)
	debug.Trace("runner", "code", "sandbox", sb.ID(), "code", code)

	exec, err := sb.RunCode(ctx, code, r.cfg.Timeout)
	observability.SandboxOperationsTotal.WithLabelValues(backend, observability.OpRun, observability.OpStatus(err)).Inc()
	if err != nil {
		return nil, sb.ID(), timeoutAware(ctx, fmt.Errorf("run code: %w", err))
	}
	return exec, sb.ID(), nil
}

// timeoutAware wraps err with sandbox.ErrTimeout when ctx expired, or
// with the cancellation cause when ctx was cancelled with one.
func timeoutAware(ctx context.Context, err error) error {
	if errors.Is(err, sandbox.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", sandbox.ErrTimeout, err)
	}
	if cause := context.Cause(ctx); cause != nil && cause != ctx.Err() && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

// duplicate turns a cached outcome into the answer for a repeated call.
func (r *Runner) duplicate(cached Outcome, age time.Duration) *Outcome {
	observability.DuplicateCallsTotal.Inc()
	debug.Log("runner", "duplicate call", "execution_id", cached.ExecutionID, "age", age)

	notice := r.printer.Sprintf(msgDuplicateCall, strconv.Itoa(int(age.Seconds())))
	return &Outcome{
		Text:        notice + "\n\n" + cached.Text,
		Status:      api.ExecutionStatusDuplicate,
		Duplicate:   true,
		SandboxID:   cached.SandboxID,
		ExecutionID: cached.ExecutionID,
		Truncated:   cached.Truncated,
		Images:      cached.Images,
	}
}

// deliver sets the delivery mode and, for silent calls, appends the note
// telling the model the code already ran.
func (r *Runner) deliver(out *Outcome, silent bool) *Outcome {
	withDelivery(out, silent)
	if silent && r.cfg.SystemNote {
		out.Text += r.printer.Sprintf(msgSystemNote)
	}
	return out
}

// withDelivery sets the delivery mode only. Used for outcomes where no code
// ran, so the model is not told otherwise.
func withDelivery(out *Outcome, silent bool) *Outcome {
	if silent {
		out.Delivery = DeliverModel
	} else {
		out.Delivery = DeliverUser
	}
	return out
}

func (r *Runner) record(ctx context.Context, sessionID, code string, out *Outcome) {
	if r.recorder == nil {
		return
	}
	rec := &api.ExecutionRecord{
		ID:         out.ExecutionID,
		SessionID:  sessionID,
		TenantID:   storage.Tenant(ctx),
		CodeHash:   CodeHash(code),
		Code:       code,
		Output:     out.Text,
		Status:     out.Status,
		Backend:    r.backend.Name(),
		SandboxID:  out.SandboxID,
		DurationMs: out.Duration.Milliseconds(),
		ImageCount: len(out.Images),
		Truncated:  out.Truncated,
		CreatedAt:  r.now().UTC(),
	}

	// The caller's context may already be cancelled by now.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.recorder.SaveExecution(saveCtx, rec); err != nil {
		slog.Warn("failed to record execution", "execution_id", rec.ID, "error", err)
	}
}
