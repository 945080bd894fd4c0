package api

import (
	"errors"
	"fmt"
)

// ErrorType is the machine-readable category carried in error bodies.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeSandboxError    ErrorType = "sandbox_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
)

// APIError is the error returned to HTTP and MCP callers. Param names the
// offending request field, when there is one.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param == "" {
		return string(e.Type) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
}

// ErrorResponse is the JSON body of every error response: {"error": {...}}.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// HasType reports whether err wraps an APIError of type t.
func HasType(err error, t ErrorType) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == t
}

func newError(t ErrorType, param, message string) *APIError {
	return &APIError{Type: t, Param: param, Message: message}
}

// NewInvalidRequestError reports a bad request field.
func NewInvalidRequestError(param, message string) *APIError {
	return newError(ErrorTypeInvalidRequest, param, message)
}

func NewNotFoundError(message string) *APIError {
	return newError(ErrorTypeNotFound, "", message)
}

// NewConflictError reports a resource that already exists, such as a
// duplicate execution ID.
func NewConflictError(message string) *APIError {
	return newError(ErrorTypeConflict, "", message)
}

func NewServerError(message string) *APIError {
	return newError(ErrorTypeServerError, "", message)
}

// NewSandboxError reports a sandbox backend failure that kept the request
// from being served at all. Failures inside user code are tool results,
// not errors.
func NewSandboxError(message string) *APIError {
	return newError(ErrorTypeSandboxError, "", message)
}

func NewUnauthorizedError(message string) *APIError {
	return newError(ErrorTypeUnauthorized, "", message)
}

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, "", message)
}
