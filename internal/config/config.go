// Package config implements TOML configuration loading, validation, and
// platform path resolution for driveconf. Overrides layer as
// defaults -> config file -> environment -> CLI flags.
package config

import (
	"fmt"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Drive   DriveConfig   `toml:"drive"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// AuthConfig identifies the application to the identity provider.
type AuthConfig struct {
	// ClientID is the OAuth2 public client identifier. Required for login;
	// other commands work with an already-stored token.
	ClientID string `toml:"client_id"`
}

// DriveConfig points at the Drive REST endpoints. Overridable for tests and
// proxies; defaults are the public API hosts.
type DriveConfig struct {
	BaseURL   string `toml:"base_url"`
	UploadURL string `toml:"upload_url"`
}

// StorageConfig controls where session state lives on disk.
type StorageConfig struct {
	// TokenPath is the session-scoped token file. Defaults to the user
	// runtime directory so the token does not outlive the login session.
	TokenPath string `toml:"token_path"`

	// SnapshotPath is the SQLite snapshot cache database.
	SnapshotPath string `toml:"snapshot_path"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	Level string `toml:"log_level"`
}

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks a Config for values that would misbehave at runtime.
// Strictness here is deliberate: a typo'd level or empty endpoint should
// fail loudly at startup, not surface as a confusing network error later.
func Validate(cfg *Config) error {
	if cfg.Drive.BaseURL == "" {
		return fmt.Errorf("config: base_url must not be empty")
	}

	if cfg.Drive.UploadURL == "" {
		return fmt.Errorf("config: upload_url must not be empty")
	}

	if cfg.Storage.TokenPath == "" {
		return fmt.Errorf("config: token_path must not be empty")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("config: invalid log_level %q (valid: debug, info, warn, error)", cfg.Logging.Level)
	}

	return nil
}
