package api

import (
	"fmt"
	"regexp"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxArgumentsSize int
	MaxSessionIDLen  int
	MaxAllowedTools  int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxArgumentsSize: 1024 * 1024, // 1MB of code is plenty
		MaxSessionIDLen:  256,
		MaxAllowedTools:  64,
	}
}

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

// ValidateToolCallRequest checks a ToolCallRequest. It returns an
// *APIError describing the first failure, or nil if the request is valid.
// Tool-specific argument validation happens in the tool provider.
func ValidateToolCallRequest(req *ToolCallRequest, cfg ValidationConfig) *APIError {
	if req.Name == "" {
		return NewInvalidRequestError("name", "name is required")
	}
	if !toolNamePattern.MatchString(req.Name) {
		return NewInvalidRequestError("name", fmt.Sprintf("invalid tool name %q", req.Name))
	}

	if cfg.MaxArgumentsSize > 0 && len(req.Arguments) > cfg.MaxArgumentsSize {
		return NewInvalidRequestError("arguments",
			fmt.Sprintf("arguments exceed maximum size of %d bytes", cfg.MaxArgumentsSize))
	}

	if cfg.MaxSessionIDLen > 0 && len(req.SessionID) > cfg.MaxSessionIDLen {
		return NewInvalidRequestError("session_id",
			fmt.Sprintf("session_id exceeds maximum length of %d", cfg.MaxSessionIDLen))
	}

	if cfg.MaxAllowedTools > 0 && len(req.AllowedTools) > cfg.MaxAllowedTools {
		return NewInvalidRequestError("allowed_tools",
			fmt.Sprintf("allowed_tools exceeds maximum of %d", cfg.MaxAllowedTools))
	}

	return nil
}

// ValidateListLimit checks a list page size. Zero selects the default.
func ValidateListLimit(limit int) *APIError {
	if limit < 0 || limit > 100 {
		return NewInvalidRequestError("limit", "limit must be between 1 and 100")
	}
	return nil
}
