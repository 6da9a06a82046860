package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/veldt-io/vecstore/pkg/debug"
)

// refreshMargin is subtracted from a token's lifetime so a token about to
// expire is refreshed before a connection tries to use it.
const refreshMargin = 2 * time.Minute

// ClientCredentialsIssuer obtains tokens from an OAuth2 token endpoint
// using the client_credentials grant. It caches the token per audience and
// refreshes it shortly before expiry; callers holding a Provider get the
// cached token without a network round-trip.
type ClientCredentialsIssuer struct {
	// TokenURL is the identity provider's token endpoint.
	TokenURL string

	// ClientID and ClientSecret authenticate this process to the identity
	// provider.
	ClientID     string
	ClientSecret string

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// If nil, a client with a 10s timeout is used.
	HTTPClient *http.Client

	mu     sync.Mutex
	cached map[string]Token // audience -> unexpired token
}

// tokenResponse is the JSON body of a successful token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a bearer token valid for audience, fetching a new one only
// when the cached token is missing or about to expire.
func (c *ClientCredentialsIssuer) Token(ctx context.Context, audience string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.cached[audience]; ok && time.Until(tok.ExpiresOn) > refreshMargin {
		return tok, nil
	}

	tok, err := c.fetchToken(ctx, audience)
	if err != nil {
		return Token{}, err
	}

	if c.cached == nil {
		c.cached = make(map[string]Token)
	}
	c.cached[audience] = tok

	debug.Log("credential", "token refreshed", "audience", audience, "expires_on", tok.ExpiresOn)
	return tok, nil
}

// fetchToken performs the client_credentials exchange. Must be called with
// the lock held.
func (c *ClientCredentialsIssuer) fetchToken(ctx context.Context, audience string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("scope", audience)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return Token{}, fmt.Errorf("token response contained no access_token")
	}

	return Token{
		Value:     tr.AccessToken,
		ExpiresOn: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
