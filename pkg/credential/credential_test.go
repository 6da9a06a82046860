package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// signToken builds an HS256 token carrying the given claims. Principal
// extraction never verifies the signature, so the key is arbitrary.
func signToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

// stubIssuer counts fetches and optionally blocks until released, to let
// tests hold a fetch in flight while more callers arrive.
type stubIssuer struct {
	token   Token
	err     error
	calls   atomic.Int64
	started chan struct{} // closed when the first fetch begins, if non-nil
	release chan struct{} // fetch blocks until closed, if non-nil
}

func (s *stubIssuer) Token(ctx context.Context, audience string) (Token, error) {
	if s.calls.Add(1) == 1 && s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
	}
	return s.token, s.err
}

func TestNewProviderValidation(t *testing.T) {
	if _, err := NewProvider(nil, "aud"); !errors.Is(err, ErrAuthResolution) {
		t.Errorf("nil issuer: got %v, want ErrAuthResolution", err)
	}
	if _, err := NewProvider(&stubIssuer{}, ""); !errors.Is(err, ErrAuthResolution) {
		t.Errorf("empty audience: got %v, want ErrAuthResolution", err)
	}
}

func TestResolveReturnsPrincipalAndToken(t *testing.T) {
	raw := signToken(t, jwtlib.MapClaims{"upn": "svc-reader@example.com"})
	p, err := NewProvider(&stubIssuer{token: Token{Value: raw, ExpiresOn: time.Now().Add(time.Hour)}}, "db")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	principal, token, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal != "svc-reader@example.com" {
		t.Errorf("principal = %q, want svc-reader@example.com", principal)
	}
	if token != raw {
		t.Errorf("token does not round-trip")
	}
}

func TestResolveSingleFlight(t *testing.T) {
	raw := signToken(t, jwtlib.MapClaims{"upn": "svc@example.com"})
	issuer := &stubIssuer{
		token:   Token{Value: raw},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, err := NewProvider(issuer, "db")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := p.Resolve(context.Background())
		results <- err
	}()

	// Wait for the first fetch to be in flight, then pile on.
	<-issuer.started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := p.Resolve(context.Background())
			results <- err
		}()
	}
	// Give the late callers time to register against the in-flight slot.
	time.Sleep(20 * time.Millisecond)
	close(issuer.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if err := <-results; err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := issuer.calls.Load(); got != 1 {
		t.Errorf("issuer fetched %d times, want 1", got)
	}
}

func TestResolveCallerCancellation(t *testing.T) {
	raw := signToken(t, jwtlib.MapClaims{"upn": "svc@example.com"})
	issuer := &stubIssuer{
		token:   Token{Value: raw},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, err := NewProvider(issuer, "db")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	first := make(chan error, 1)
	go func() {
		_, _, err := p.Resolve(context.Background())
		first <- err
	}()
	<-issuer.started

	// A waiter whose context expires leaves; the in-flight fetch is unharmed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := p.Resolve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter: got %v, want context.Canceled", err)
	}

	close(issuer.release)
	if err := <-first; err != nil {
		t.Errorf("original caller: %v", err)
	}
}

func TestResolveErrorsAreNotCached(t *testing.T) {
	raw := signToken(t, jwtlib.MapClaims{"upn": "svc@example.com"})
	issuer := &stubIssuer{err: errors.New("idp down")}
	p, err := NewProvider(issuer, "db")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	ctx := context.Background()

	if _, _, err := p.Resolve(ctx); !errors.Is(err, ErrAuthResolution) {
		t.Fatalf("got %v, want ErrAuthResolution", err)
	}

	// Next call fetches again and succeeds.
	issuer.err = nil
	issuer.token = Token{Value: raw}
	principal, _, err := p.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve after recovery: %v", err)
	}
	if principal != "svc@example.com" {
		t.Errorf("principal = %q", principal)
	}
	if got := issuer.calls.Load(); got != 2 {
		t.Errorf("issuer fetched %d times, want 2", got)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	p, err := NewProvider(&stubIssuer{token: Token{}}, "db")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, _, err := p.Resolve(context.Background()); !errors.Is(err, ErrAuthResolution) {
		t.Errorf("got %v, want ErrAuthResolution", err)
	}
}

func TestPrincipal(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{
			name:  "upn present",
			token: "",
			want:  "reader@example.com",
		},
		{
			name:    "upn absent",
			token:   "",
			wantErr: ErrClaimMissing,
		},
		{
			name:    "not a token",
			token:   "definitely-not-a-jwt",
			wantErr: ErrClaimMissing,
		},
		{
			name:    "empty string",
			token:   "",
			wantErr: ErrClaimMissing,
		},
	}

	tests[0].token = signToken(t, jwtlib.MapClaims{"upn": "reader@example.com", "aud": "db"})
	tests[1].token = signToken(t, jwtlib.MapClaims{"sub": "reader"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Principal(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Principal: %v", err)
			}
			if got != tt.want {
				t.Errorf("principal = %q, want %q", got, tt.want)
			}
		})
	}
}
