// Package auth provides pluggable authentication for the runcode HTTP and
// MCP endpoints.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware. The middleware injects the
// identity into the request context, where the tool-call handler uses its
// subject as the default session and the storage layer uses its tenant.
package auth
