package pgvector

import (
	"time"

	"github.com/veldt-io/vecstore/pkg/vecstore"
)

// AuthMode selects how pool connections authenticate.
type AuthMode string

const (
	// AuthStatic uses a fixed username and password from the configuration.
	AuthStatic AuthMode = "static"
	// AuthToken resolves a principal and bearer token per physical
	// connection through a credential.Provider.
	AuthToken AuthMode = "token"
)

// Config holds connection and collection settings.
type Config struct {
	// AuthMode is "static" or "token" (default: "static").
	AuthMode AuthMode

	// Host is the database host. Required.
	Host string

	// Port is the database port (default: 5432).
	Port int

	// Database is the database name. Required.
	Database string

	// User and Password authenticate static-mode connections. Required in
	// static mode; ignored in token mode.
	User     string
	Password string

	// SSLMode is the libpq sslmode value (default: "require").
	SSLMode string

	// Collection is the name of the collection this store is bound to.
	// Required.
	Collection string

	// Dimensions is the collection's embedding dimensionality. Required.
	Dimensions int

	// Metric is the collection's distance metric (default: cosine).
	Metric vecstore.Metric

	// MaxConns is the maximum number of connections in the pool (default: 25).
	MaxConns int32

	// MinConns is the minimum number of idle connections maintained (default: 2).
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection before it is
	// closed and replaced (default: 30 minutes). In token mode this also
	// bounds how long a connection outlives the token it was opened with.
	MaxConnLifetime time.Duration

	// MigrateOnStart applies schema migrations and registers the
	// collection at startup.
	MigrateOnStart bool
}

// defaults applies default values for unset configuration fields.
func (c *Config) defaults() {
	if c.AuthMode == "" {
		c.AuthMode = AuthStatic
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
	if c.Metric == "" {
		c.Metric = vecstore.MetricCosine
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
}
