package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

// ToolListResponse is the body of GET /v1/tools.
type ToolListResponse struct {
	Object string           `json:"object"`
	Data   []ToolDefinition `json:"data"`
}

// Delivery tells the host where a tool output goes.
type Delivery string

const (
	// DeliveryModel returns the output to the model as the tool result.
	DeliveryModel Delivery = "model"

	// DeliveryUser sends the output straight to the user; the host ends
	// the model turn.
	DeliveryUser Delivery = "user"
)

// Arguments holds tool-call arguments as a JSON object. Hosts may send
// either the object itself or the JSON-encoded string most model APIs
// produce; both decode to the same raw object.
type Arguments json.RawMessage

// UnmarshalJSON accepts an object or a string containing an object.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("arguments: %w", err)
		}
		if s == "" {
			*a = nil
			return nil
		}
		data = []byte(s)
	}

	if !json.Valid(data) || data[0] != '{' {
		return fmt.Errorf("arguments must be a JSON object")
	}
	*a = append((*a)[:0], data...)
	return nil
}

// MarshalJSON emits the raw object, or {} when empty.
func (a Arguments) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("{}"), nil
	}
	return []byte(a), nil
}

// String returns the arguments as a JSON string.
func (a Arguments) String() string {
	if len(a) == 0 {
		return "{}"
	}
	return string(a)
}

// ToolCallRequest is the body of POST /v1/tools/call.
type ToolCallRequest struct {
	// ID is the host's call identifier. Generated when empty.
	ID string `json:"id,omitempty"`

	// Name is the tool name, e.g. "run_python_code".
	Name string `json:"name"`

	// Arguments are the tool arguments produced by the model.
	Arguments Arguments `json:"arguments,omitempty"`

	// SessionID scopes duplicate-call detection. Defaults to the
	// authenticated subject.
	SessionID string `json:"session_id,omitempty"`

	// AllowedTools restricts which tools this call may invoke.
	AllowedTools []string `json:"allowed_tools,omitempty"`
}

// ImageData is an image produced by an execution, base64-encoded.
type ImageData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// ToolCallResponse is the body returned by POST /v1/tools/call.
type ToolCallResponse struct {
	Object      string      `json:"object"`
	CallID      string      `json:"call_id"`
	Output      string      `json:"output"`
	IsError     bool        `json:"is_error"`
	Delivery    Delivery    `json:"delivery"`
	EndTurn     bool        `json:"end_turn"`
	Status      string      `json:"status,omitempty"`
	Duplicate   bool        `json:"duplicate,omitempty"`
	ExecutionID string      `json:"execution_id,omitempty"`
	Images      []ImageData `json:"images,omitempty"`
}

// ExecutionRecord is one stored sandbox run.
type ExecutionRecord struct {
	Object     string          `json:"object"`
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	TenantID   string          `json:"tenant_id,omitempty"`
	CodeHash   string          `json:"code_hash"`
	Code       string          `json:"code"`
	Output     string          `json:"output"`
	Status     ExecutionStatus `json:"status"`
	Backend    string          `json:"backend"`
	SandboxID  string          `json:"sandbox_id,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	ImageCount int             `json:"image_count"`
	Truncated  bool            `json:"truncated"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExecutionList is the body of GET /v1/executions, newest first unless
// ascending order was requested.
type ExecutionList struct {
	Object  string             `json:"object"`
	Data    []*ExecutionRecord `json:"data"`
	HasMore bool               `json:"has_more"`
	FirstID string             `json:"first_id"`
	LastID  string             `json:"last_id"`
}

// ToolBatchRequest is the body of POST /v1/tools/batch: the tool calls a
// model produced in one turn.
type ToolBatchRequest struct {
	Calls        []ToolCallRequest `json:"calls"`
	SessionID    string            `json:"session_id,omitempty"`
	AllowedTools []string          `json:"allowed_tools,omitempty"`
}

// ToolBatchResponse holds one response per call, in request order.
// EndTurn is set when any call delivered its output to the user.
type ToolBatchResponse struct {
	Object  string             `json:"object"`
	Data    []ToolCallResponse `json:"data"`
	EndTurn bool               `json:"end_turn"`
}
