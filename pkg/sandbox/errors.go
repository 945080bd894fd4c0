package sandbox

import "errors"

// Sentinel errors shared by all backends. Backends wrap these with
// additional context; check with errors.Is.
var (
	// ErrSandboxNotFound is returned when the sandbox no longer exists.
	ErrSandboxNotFound = errors.New("sandbox not found")

	// ErrTimeout is returned when the sandbox did not answer in time.
	ErrTimeout = errors.New("sandbox timed out")

	// ErrCapacity is returned when the backend refuses new work.
	ErrCapacity = errors.New("sandbox backend at capacity")

	// ErrUnauthorized is returned when the backend rejects the credentials.
	ErrUnauthorized = errors.New("sandbox backend rejected credentials")
)
