// Package credential resolves the database principal and bearer token used
// for token-mode authentication.
//
// A Provider holds a single TokenIssuer handle (constructed once and
// reused; the issuer owns token caching and refresh against the identity
// backend) and serializes concurrent resolutions through a single-flight
// cache slot: at most one fetch is in flight at a time, and callers racing
// with it receive the same result.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Sentinel errors returned by Resolve. Both are retryable by the caller;
// this layer never retries silently.
var (
	// ErrAuthResolution indicates the identity provider was unreachable or
	// returned no usable token.
	ErrAuthResolution = errors.New("resolving credential")

	// ErrClaimMissing indicates the token could not be decoded or lacks
	// the principal claim.
	ErrClaimMissing = errors.New("token missing principal claim")
)

// principalClaim is the token claim carrying the user principal name.
const principalClaim = "upn"

// Token is a bearer credential with its expiry.
type Token struct {
	Value     string
	ExpiresOn time.Time
}

// TokenIssuer obtains bearer tokens for a target audience. Implementations
// may return a cached unexpired token or fetch a new one; that refresh
// policy belongs to the issuer, not to the Provider.
type TokenIssuer interface {
	Token(ctx context.Context, audience string) (Token, error)
}

// Provider resolves a (principal, token) pair from a TokenIssuer.
type Provider struct {
	issuer   TokenIssuer
	audience string

	mu       sync.Mutex
	inflight *resolution // non-nil while a fetch is outstanding
}

// resolution is the in-flight-request marker of the single-flight slot.
// done is closed once the fields are populated.
type resolution struct {
	done      chan struct{}
	principal string
	token     string
	err       error
}

// NewProvider creates a Provider that asks issuer for tokens valid for the
// given audience.
func NewProvider(issuer TokenIssuer, audience string) (*Provider, error) {
	if issuer == nil {
		return nil, fmt.Errorf("%w: nil token issuer", ErrAuthResolution)
	}
	if audience == "" {
		return nil, fmt.Errorf("%w: empty audience", ErrAuthResolution)
	}
	return &Provider{issuer: issuer, audience: audience}, nil
}

// Resolve returns the current principal and bearer token. Concurrent calls
// share a single outstanding fetch: callers arriving while one is in
// flight block on it and receive its result.
func (p *Provider) Resolve(ctx context.Context) (principal, token string, err error) {
	p.mu.Lock()
	if r := p.inflight; r != nil {
		p.mu.Unlock()
		select {
		case <-r.done:
			return r.principal, r.token, r.err
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}

	r := &resolution{done: make(chan struct{})}
	p.inflight = r
	p.mu.Unlock()

	r.principal, r.token, r.err = p.fetch(ctx)

	p.mu.Lock()
	p.inflight = nil
	p.mu.Unlock()
	close(r.done)

	return r.principal, r.token, r.err
}

// fetch asks the issuer for a token and extracts the principal from it.
func (p *Provider) fetch(ctx context.Context) (string, string, error) {
	tok, err := p.issuer.Token(ctx, p.audience)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrAuthResolution, err)
	}
	if tok.Value == "" {
		return "", "", fmt.Errorf("%w: issuer returned an empty token", ErrAuthResolution)
	}

	principal, err := Principal(tok.Value)
	if err != nil {
		return "", "", err
	}
	return principal, tok.Value, nil
}

// Principal extracts the user principal name from a bearer token by
// decoding its claims segment. Pure; no network call.
func Principal(token string) (string, error) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: decoding token: %w", ErrClaimMissing, err)
	}

	principal, ok := claims[principalClaim].(string)
	if !ok || principal == "" {
		return "", fmt.Errorf("%w: no %q claim", ErrClaimMissing, principalClaim)
	}
	return principal, nil
}
