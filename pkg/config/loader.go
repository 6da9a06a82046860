package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, VECSTORE_CONFIG env, ./config.yaml,
//     /etc/vecstore/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. VECSTORE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/vecstore/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("VECSTORE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/vecstore/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VECSTORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("VECSTORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = port
		}
	}
	if v := os.Getenv("VECSTORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("VECSTORE_SSLMODE"); v != "" {
		cfg.Store.SSLMode = v
	}
	if v := os.Getenv("VECSTORE_COLLECTION"); v != "" {
		cfg.Store.Collection = v
	}
	if v := os.Getenv("VECSTORE_DIMENSIONS"); v != "" {
		if dims, err := strconv.Atoi(v); err == nil {
			cfg.Store.Dimensions = dims
		}
	}
	if v := os.Getenv("VECSTORE_METRIC"); v != "" {
		cfg.Store.Metric = v
	}
	if v := os.Getenv("VECSTORE_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = v
	}
	if v := os.Getenv("VECSTORE_USER"); v != "" {
		cfg.Auth.User = v
	}
	if v := os.Getenv("VECSTORE_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("VECSTORE_TOKEN_URL"); v != "" {
		cfg.Auth.Token.TokenURL = v
	}
	if v := os.Getenv("VECSTORE_CLIENT_ID"); v != "" {
		cfg.Auth.Token.ClientID = v
	}
	if v := os.Getenv("VECSTORE_CLIENT_SECRET"); v != "" {
		cfg.Auth.Token.ClientSecret = v
	}
	if v := os.Getenv("VECSTORE_AUDIENCE"); v != "" {
		cfg.Auth.Token.Audience = v
	}
	if v := os.Getenv("VECSTORE_EMBEDDING_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("VECSTORE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("VECSTORE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. For each field ending in _file, if the value field is empty
// and the file field is set, the file is read, whitespace is trimmed, and
// the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.password_file -> auth.password
	if cfg.Auth.PasswordFile != "" && cfg.Auth.Password == "" {
		val, err := readSecretFile(cfg.Auth.PasswordFile)
		if err != nil {
			return fmt.Errorf("auth.password_file: %w", err)
		}
		cfg.Auth.Password = val
	}

	// auth.token.client_secret_file -> auth.token.client_secret
	if cfg.Auth.Token.ClientSecretFile != "" && cfg.Auth.Token.ClientSecret == "" {
		val, err := readSecretFile(cfg.Auth.Token.ClientSecretFile)
		if err != nil {
			return fmt.Errorf("auth.token.client_secret_file: %w", err)
		}
		cfg.Auth.Token.ClientSecret = val
	}

	// embedding.api_key_file -> embedding.api_key
	if cfg.Embedding.APIKeyFile != "" && cfg.Embedding.APIKey == "" {
		val, err := readSecretFile(cfg.Embedding.APIKeyFile)
		if err != nil {
			return fmt.Errorf("embedding.api_key_file: %w", err)
		}
		cfg.Embedding.APIKey = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
