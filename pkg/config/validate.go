package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Host == "" {
		errs = append(errs, fmt.Errorf("store.host is required"))
	}
	if c.Store.Database == "" {
		errs = append(errs, fmt.Errorf("store.database is required"))
	}
	if c.Store.Port <= 0 {
		errs = append(errs, fmt.Errorf("store.port must be > 0, got %d", c.Store.Port))
	}
	if c.Store.Collection == "" {
		errs = append(errs, fmt.Errorf("store.collection is required"))
	}
	if c.Store.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("store.dimensions must be > 0, got %d", c.Store.Dimensions))
	}

	switch c.Store.Metric {
	case "cosine", "l2", "inner_product":
		// valid
	default:
		errs = append(errs, fmt.Errorf("store.metric must be \"cosine\", \"l2\", or \"inner_product\", got %q", c.Store.Metric))
	}

	switch c.Auth.Mode {
	case "static":
		if c.Auth.User == "" {
			errs = append(errs, fmt.Errorf("auth.user is required when auth.mode is \"static\""))
		}
		if c.Auth.Password == "" && c.Auth.PasswordFile == "" {
			errs = append(errs, fmt.Errorf("auth.password or auth.password_file is required when auth.mode is \"static\""))
		}
	case "token":
		if c.Auth.Token.TokenURL == "" {
			errs = append(errs, fmt.Errorf("auth.token.token_url is required when auth.mode is \"token\""))
		}
		if c.Auth.Token.ClientID == "" {
			errs = append(errs, fmt.Errorf("auth.token.client_id is required when auth.mode is \"token\""))
		}
		if c.Auth.Token.ClientSecret == "" && c.Auth.Token.ClientSecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.token.client_secret or auth.token.client_secret_file is required when auth.mode is \"token\""))
		}
		if c.Auth.Token.Audience == "" {
			errs = append(errs, fmt.Errorf("auth.token.audience is required when auth.mode is \"token\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be \"static\" or \"token\", got %q", c.Auth.Mode))
	}

	if c.Embedding.BaseURL == "" {
		errs = append(errs, fmt.Errorf("embedding.base_url is required"))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, fmt.Errorf("embedding.model is required"))
	}

	return errors.Join(errs...)
}
