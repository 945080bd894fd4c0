package tools

import (
	"slices"

	"github.com/rhuss/runcode/pkg/api"
)

// IsAllowed reports whether name passes allowedTools. An empty list
// allows every tool.
func IsAllowed(name string, allowedTools []string) bool {
	return len(allowedTools) == 0 || slices.Contains(allowedTools, name)
}

// RejectedResult is the failure result for a call outside allowed_tools.
func RejectedResult(call ToolCall) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Output:  "tool " + call.Name + " is not in the allowed_tools list",
		IsError: true,
		Status:  api.ExecutionStatusFailure,
	}
}

// PartitionAllowed splits calls into those allowedTools permits and
// failure results for the rest. Input order is kept on both sides.
func PartitionAllowed(calls []ToolCall, allowedTools []string) (allowed []ToolCall, rejected []ToolResult) {
	for _, call := range calls {
		if IsAllowed(call.Name, allowedTools) {
			allowed = append(allowed, call)
		} else {
			rejected = append(rejected, RejectedResult(call))
		}
	}
	return allowed, rejected
}
