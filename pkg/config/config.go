// Package config provides unified configuration for the vector store.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (VECSTORE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the vector store.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Auth          AuthConfig          `yaml:"auth"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig holds database and collection settings.
type StoreConfig struct {
	Host            string        `yaml:"host"`             // required
	Port            int           `yaml:"port"`             // default: 5432
	Database        string        `yaml:"database"`         // required
	SSLMode         string        `yaml:"sslmode"`          // default: "require"
	Collection      string        `yaml:"collection"`       // required
	Dimensions      int           `yaml:"dimensions"`       // required
	Metric          string        `yaml:"metric"`           // "cosine", "l2", "inner_product", default: "cosine"
	MaxConns        int32         `yaml:"max_conns"`        // default: 25
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"` // default: 30m
	MigrateOnStart  bool          `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds database authentication settings.
type AuthConfig struct {
	Mode         string      `yaml:"mode"` // "static" or "token", default: "static"
	User         string      `yaml:"user"`
	Password     string      `yaml:"password"`
	PasswordFile string      `yaml:"password_file"` // _file variant for password
	Token        TokenConfig `yaml:"token"`
}

// TokenConfig holds identity provider settings for token auth mode.
type TokenConfig struct {
	TokenURL         string `yaml:"token_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	ClientSecretFile string `yaml:"client_secret_file"` // _file variant for client_secret
	Audience         string `yaml:"audience"`
}

// EmbeddingConfig holds embedder endpoint settings.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"` // required
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	Model      string `yaml:"model"`        // required
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Port:            5432,
			SSLMode:         "require",
			Metric:          "cosine",
			MaxConns:        25,
			MaxConnLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			Mode: "static",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
