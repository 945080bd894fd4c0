package auth

import (
	"context"
	"errors"
	"net/http"
)

// AnonymousSubject identifies callers admitted without credentials.
const AnonymousSubject = "anonymous"

// TenantMetadataKey is the Identity.Metadata key that scopes storage.
const TenantMetadataKey = "tenant_id"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request and ends the chain.
	Yes AuthDecision = iota
	// No rejects the request and ends the chain.
	No
	// Abstain passes the request to the next authenticator, typically
	// because the credential is of a kind this one does not handle.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	}
	return "unknown"
}

// AuthResult is an authenticator's vote plus the identity (on Yes) or the
// reason (on No).
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Accept returns a Yes vote for id.
func Accept(id *Identity) AuthResult { return AuthResult{Decision: Yes, Identity: id} }

// Reject returns a No vote. A nil err becomes ErrUnauthenticated.
func Reject(err error) AuthResult {
	if err == nil {
		err = ErrUnauthenticated
	}
	return AuthResult{Decision: No, Err: err}
}

// Pass returns an Abstain vote.
func Pass() AuthResult { return AuthResult{Decision: Abstain} }

// Identity is an authenticated caller.
type Identity struct {
	Subject     string // required
	ServiceTier string // selects the rate limit
	Scopes      []string
	Metadata    map[string]string
}

// TenantID returns the caller's tenant, or "".
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Metadata[TenantMetadataKey]
}

// SessionKey scopes duplicate detection for calls that name no session:
// "<tenant>/<subject>", or just the subject without a tenant.
func (id *Identity) SessionKey() string {
	switch {
	case id == nil:
		return ""
	case id.TenantID() != "":
		return id.TenantID() + "/" + id.Subject
	default:
		return id.Subject
	}
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// AuthChain asks each authenticator in turn. The first Yes or No wins;
// when all abstain, DefaultDecision applies, admitting an anonymous
// caller on Yes.
type AuthChain struct {
	Authenticators  []Authenticator
	DefaultDecision AuthDecision
}

func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}
	if c.DefaultDecision == Yes {
		return Accept(&Identity{Subject: AnonymousSubject, ServiceTier: "default"})
	}
	return Reject(nil)
}
