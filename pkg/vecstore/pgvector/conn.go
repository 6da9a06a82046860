package pgvector

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veldt-io/vecstore/pkg/credential"
	"github.com/veldt-io/vecstore/pkg/debug"
	"github.com/veldt-io/vecstore/pkg/observability"
	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// newPool builds the connection pool for cfg. In token mode the pool
// config carries no username or password; a BeforeConnect hook fills both
// in from provider at every physical connection attempt. In static mode
// the credentials are embedded in the DSN and no hook is registered.
//
// Configuration is checked before any network attempt.
func newPool(ctx context.Context, cfg Config, provider *credential.Provider) (*pgxpool.Pool, error) {
	if err := validateConn(cfg, provider); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing connection string: %w", vecstore.ErrConfiguration, err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	if cfg.AuthMode == AuthToken {
		poolCfg.BeforeConnect = credentialHook(provider)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// credentialHook returns the connect-time hook for token mode. The pool
// invokes it once per physical connection establishment, so every new
// connection authenticates with a freshly resolved principal and token;
// connections already open keep the credentials they were created with.
// The hook is reentrant: concurrent connection attempts each call Resolve,
// which serializes fetches through the provider's single-flight slot.
func credentialHook(provider *credential.Provider) func(context.Context, *pgx.ConnConfig) error {
	return func(ctx context.Context, connCfg *pgx.ConnConfig) error {
		principal, token, err := provider.Resolve(ctx)
		if err != nil {
			observability.CredentialResolutionsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("resolving connection credentials: %w", err)
		}
		observability.CredentialResolutionsTotal.WithLabelValues("ok").Inc()
		connCfg.User = principal
		connCfg.Password = token
		debug.Log("credential", "connection credentials resolved", "principal", principal)
		return nil
	}
}

// validateConn fails fast on missing required configuration.
func validateConn(cfg Config, provider *credential.Provider) error {
	if cfg.Host == "" {
		return fmt.Errorf("%w: host is required", vecstore.ErrConfiguration)
	}
	if cfg.Database == "" {
		return fmt.Errorf("%w: database is required", vecstore.ErrConfiguration)
	}
	switch cfg.AuthMode {
	case AuthStatic:
		if cfg.User == "" || cfg.Password == "" {
			return fmt.Errorf("%w: user and password are required in static auth mode", vecstore.ErrConfiguration)
		}
	case AuthToken:
		if provider == nil {
			return fmt.Errorf("%w: a credential provider is required in token auth mode", vecstore.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: auth mode must be %q or %q, got %q", vecstore.ErrConfiguration, AuthStatic, AuthToken, cfg.AuthMode)
	}
	return nil
}

// connString builds the connection descriptor. The username is
// percent-encoded; principals are often email-shaped.
func connString(cfg Config) string {
	hostPort := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var user *url.Userinfo
	if cfg.AuthMode == AuthStatic {
		user = url.UserPassword(cfg.User, cfg.Password)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     hostPort,
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": []string{cfg.SSLMode}}.Encode(),
	}
	return u.String()
}
