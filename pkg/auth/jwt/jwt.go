// Package jwt authenticates bot hosts that present an RS256/384/512
// bearer token signed by a key from a JWKS endpoint.
//
// Subject, tenant, service tier and scopes are read from configurable
// claims, so the identity plugs straight into rate limiting and the
// per-session duplicate cache.
package jwt

import (
	"cmp"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/runcode/pkg/auth"
	"github.com/rhuss/runcode/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is where signing keys are fetched from.
	JWKSURL string

	// Claim names. Defaults: sub, tenant_id, tier, scope.
	UserClaim   string
	TenantClaim string
	TierClaim   string
	ScopesClaim string

	// CacheTTL is how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// MinRefreshInterval is the least time between two fetches triggered
	// by tokens with an unknown kid. Default: 1 minute.
	MinRefreshInterval time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	parser *jwtlib.Parser
	keys   *keySet
}

// New creates a JWT authenticator. Zero Config fields take the defaults
// documented on Config.
func New(cfg Config) *Authenticator {
	cfg.UserClaim = cmp.Or(cfg.UserClaim, "sub")
	cfg.TenantClaim = cmp.Or(cfg.TenantClaim, "tenant_id")
	cfg.TierClaim = cmp.Or(cfg.TierClaim, "tier")
	cfg.ScopesClaim = cmp.Or(cfg.ScopesClaim, "scope")
	cfg.CacheTTL = cmp.Or(cfg.CacheTTL, time.Hour)
	cfg.MinRefreshInterval = cmp.Or(cfg.MinRefreshInterval, time.Minute)
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		config: cfg,
		parser: jwtlib.NewParser(opts...),
		keys: &keySet{
			url:        cfg.JWKSURL,
			ttl:        cfg.CacheTTL,
			minRefresh: cfg.MinRefreshInterval,
			client:     cfg.HTTPClient,
			keys:       make(map[string]*rsa.PublicKey),
		},
	}
}

// Authenticate abstains when there is no bearer token or the token is
// not JWT-shaped (an opaque API key), rejects an invalid token, and
// accepts a valid one.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.Count(tokenStr, ".") != 2 {
		return auth.Pass()
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	})
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		return auth.Reject(fmt.Errorf("invalid JWT: %w", err))
	}

	identity, err := a.identityFromClaims(claims)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Accept(identity)
}

func (a *Authenticator) identityFromClaims(claims jwtlib.MapClaims) (*auth.Identity, error) {
	sub := claimString(claims, a.config.UserClaim)
	if sub == "" {
		return nil, fmt.Errorf("JWT missing %q claim", a.config.UserClaim)
	}

	id := &auth.Identity{
		Subject:     sub,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Scopes:      claimScopes(claims, a.config.ScopesClaim),
		Metadata:    make(map[string]string),
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		id.Metadata[auth.TenantMetadataKey] = tenant
	}
	return id, nil
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimScopes accepts either a space-separated string or a JSON array.
func claimScopes(claims jwtlib.MapClaims, key string) []string {
	var out []string
	switch v := claims[key].(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if scope, ok := item.(string); ok && scope != "" {
				out = append(out, scope)
			}
		}
	}
	return slices.Clip(out)
}

// keySet caches RSA public keys by kid. Concurrent misses share a
// single JWKS fetch, and unknown kids refetch at most once per minRefresh.
type keySet struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time

	group singleflight.Group
}

func (s *keySet) lookup(kid string, fresh bool) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	if !ok || (fresh && time.Since(s.fetchedAt) >= s.ttl) {
		return nil, false
	}
	return key, true
}

func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s.lookup(kid, true); ok {
		return key, nil
	}
	if !s.refreshDue() {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}

	_, err, _ := s.group.Do("jwks", func() (any, error) {
		if !s.refreshDue() {
			return nil, nil
		}
		return nil, s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}

	if key, ok := s.lookup(kid, false); ok {
		return key, nil
	}
	return nil, fmt.Errorf("key %q not found in JWKS", kid)
}

// refreshDue reports whether a fetch is allowed: the keys were never
// fetched or have expired, or the last attempt is minRefresh ago.
func (s *keySet) refreshDue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fetchedAt.IsZero() || time.Since(s.fetchedAt) >= s.ttl {
		return true
	}
	return time.Since(s.attemptedAt) >= s.minRefresh
}

func (s *keySet) refresh(ctx context.Context) error {
	s.mu.Lock()
	s.attemptedAt = time.Now()
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			debug.Log("auth", "skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	debug.Log("auth", "JWKS refreshed", "keys", len(keys), "url", s.url)
	return nil
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
