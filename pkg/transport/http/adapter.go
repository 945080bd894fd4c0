package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/storage"
	"github.com/rhuss/runcode/pkg/transport"
)

// Adapter serves the tool-call API over HTTP.
type Adapter struct {
	service  transport.ToolService
	caller   transport.ToolCaller
	store    transport.ExecutionStore // nil when history is disabled
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// defaultMaxBodySize caps tool call bodies when Config leaves it unset.
const defaultMaxBodySize = 2 << 20

// Config holds configuration for the HTTP adapter.
type Config struct {
	// MaxBodySize caps request bodies in bytes. Zero means 2 MiB.
	MaxBodySize int64
}

func DefaultConfig() Config {
	return Config{MaxBodySize: defaultMaxBodySize}
}

// NewAdapter creates an HTTP adapter for the given tool service. The store
// is optional; without it the execution endpoints answer 501. Middleware
// wraps single tool calls in the given order, inside the in-flight
// registration that makes calls cancellable.
func NewAdapter(svc transport.ToolService, store transport.ExecutionStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	a := &Adapter{
		service:  svc,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	mws := append(append([]transport.Middleware{}, middlewares...), transport.InFlight(a.inflight))
	a.caller = transport.Chain(mws...)(svc)

	a.mux.HandleFunc("GET /v1/tools", a.handleListTools)
	a.mux.HandleFunc("POST /v1/tools/call", a.handleCallTool)
	a.mux.HandleFunc("DELETE /v1/tools/calls/{id}", a.handleCancelCall)
	if _, ok := svc.(transport.BatchCaller); ok {
		a.mux.HandleFunc("POST /v1/tools/batch", a.handleCallBatch)
	}
	a.mux.HandleFunc("GET /v1/executions/{id}", a.handleGetExecution)
	a.mux.HandleFunc("GET /v1/executions", a.handleListExecutions)
	a.mux.HandleFunc("DELETE /v1/executions/{id}", a.handleDeleteExecution)

	return a
}

// Handle mounts an additional handler on the adapter's mux, e.g. builtin
// provider routes or the MCP endpoint.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// InFlight returns the registry of running calls.
func (a *Adapter) InFlight() *transport.InFlightRegistry { return a.inflight }

// Handler returns the http.Handler for this adapter, with X-Request-ID
// propagation applied.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware takes the request ID from X-Request-ID or
// generates one, stores it in the context, and echoes it in the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

func (a *Adapter) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs := a.service.ListTools(r.Context())
	if defs == nil {
		defs = []api.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, api.ToolListResponse{Object: "list", Data: defs})
}

func (a *Adapter) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req api.ToolCallRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.caller.CallTool(r.Context(), &req)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *Adapter) handleCallBatch(w http.ResponseWriter, r *http.Request) {
	var batch api.ToolBatchRequest
	if !a.decode(w, r, &batch) {
		return
	}

	resp, err := a.service.(transport.BatchCaller).CallTools(r.Context(), &batch)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancelCall aborts a running call. The aborted call itself answers
// with a failure result.
func (a *Adapter) handleCancelCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("no call "+id+" in progress"))
		return
	}
	debug.Log("transport", "call cancelled", "call_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := a.executionID(w, r)
	if !ok {
		return
	}

	rec, err := a.store.GetExecution(r.Context(), id)
	if err != nil {
		transport.WriteAPIError(w, notFoundAs(err, "execution "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *Adapter) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := a.executionID(w, r)
	if !ok {
		return
	}

	if err := a.store.DeleteExecution(r.Context(), id); err != nil {
		transport.WriteAPIError(w, notFoundAs(err, "execution "+id+" not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if !a.requireStore(w) {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.store.ListExecutions(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// executionID validates the path ID and the store's presence.
func (a *Adapter) executionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !a.requireStore(w) {
		return "", false
	}
	id := r.PathValue("id")
	if !api.ValidateExecutionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed execution ID"))
		return "", false
	}
	return id, true
}

func (a *Adapter) requireStore(w http.ResponseWriter) bool {
	if a.store != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", "execution history is not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

// decode reads a JSON body into v, writing the error response on failure.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// parseListOptions extracts pagination and filter parameters.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		SessionID: q.Get("session_id"),
		After:     q.Get("after"),
		Order:     q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		if apiErr := api.ValidateListLimit(limit); apiErr != nil {
			return opts, apiErr
		}
		opts.Limit = limit
	}

	return opts, nil
}

// notFoundAs maps storage.ErrNotFound to a not_found error with msg.
func notFoundAs(err error, msg string) *api.APIError {
	if errors.Is(err, storage.ErrNotFound) || api.HasType(err, api.ErrorTypeNotFound) {
		return api.NewNotFoundError(msg)
	}
	return transport.AsAPIError(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
