package api

// ExecutionStatus is the outcome class of a tool execution.
type ExecutionStatus string

const (
	// ExecutionStatusSuccess means the code ran without raising.
	ExecutionStatusSuccess ExecutionStatus = "success"

	// ExecutionStatusError means the code ran and raised an error.
	ExecutionStatusError ExecutionStatus = "error"

	// ExecutionStatusFailure means the sandbox round-trip or the
	// configuration failed; the code may not have run.
	ExecutionStatusFailure ExecutionStatus = "failure"

	// ExecutionStatusTimeout means the round-trip exceeded its deadline.
	ExecutionStatusTimeout ExecutionStatus = "timeout"

	// ExecutionStatusDuplicate means the call repeated a recent one and
	// was answered from the cache.
	ExecutionStatusDuplicate ExecutionStatus = "duplicate"
)

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusError, ExecutionStatusFailure,
		ExecutionStatusTimeout, ExecutionStatusDuplicate:
		return true
	}
	return false
}

// Completed reports whether the code ran to completion in the sandbox,
// whether or not it raised. Only completed executions are reused for
// duplicate calls.
func (s ExecutionStatus) Completed() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

// IsError reports whether the status should be surfaced as a tool error.
func (s ExecutionStatus) IsError() bool {
	return s == ExecutionStatusFailure || s == ExecutionStatusTimeout
}
