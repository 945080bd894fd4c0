// Package apikey authenticates callers by static API keys sent as
// "X-API-Key: <key>" or "Authorization: Bearer <key>". Only SHA-256
// digests of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/rhuss/runcode/pkg/auth"
)

// HeaderName is the dedicated API key header. It takes precedence over
// the Authorization header.
const HeaderName = "X-API-Key"

// RawKeyEntry pairs a plaintext key from configuration with the identity
// it grants.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks presented keys against the configured ones.
type Authenticator struct {
	keys []keyEntry
}

// New hashes entries and discards the plaintext keys.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{keys: make([]keyEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, keyEntry{digest: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Authenticate abstains when no key is presented (or the bearer token is
// a JWT), accepts a known key and rejects anything else. Every configured
// key is compared so the time taken does not depend on which one matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	key, presented := presentedKey(r)
	if !presented {
		return auth.Pass()
	}
	if key == "" {
		return auth.Reject(nil)
	}

	digest := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].digest[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Reject(nil)
	}

	id := a.keys[match].identity
	id.Scopes = slices.Clone(id.Scopes)
	id.Metadata = maps.Clone(id.Metadata)
	return auth.Accept(&id)
}

// presentedKey returns the key on the request and whether one was sent.
// Bearer tokens shaped like a JWT count as not sent.
func presentedKey(r *http.Request) (string, bool) {
	if key := r.Header.Get(HeaderName); key != "" {
		return strings.TrimSpace(key), true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") == 2 {
		return "", false
	}
	return token, true
}
