package config

import (
	"os"
	"path/filepath"
)

// Application directory name used for config, token, and cache paths.
const appName = "driveconf"

// Config file name.
const configFileName = "config.toml"

const defaultLogLevel = "info"

// Default Drive v3 endpoints. Mirrored here (rather than imported from the
// drive package) so config stays a leaf package.
const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// tokenFileName matches the single key the browser build of this app uses
// in session storage.
const tokenFileName = "drive_access_token"

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			BaseURL:   defaultBaseURL,
			UploadURL: defaultUploadURL,
		},
		Storage: StorageConfig{
			TokenPath:    DefaultTokenPath(),
			SnapshotPath: DefaultSnapshotPath(),
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// DefaultConfigPath returns the default config file location
// (e.g. ~/.config/driveconf/config.toml on Linux).
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", configFileName)
	}

	return filepath.Join(dir, appName, configFileName)
}

// DefaultTokenPath returns the session-scoped token file location. The
// runtime directory is cleared when the login session ends, which is the
// closest native analog of browser session storage; systems without one
// fall back to the temp directory.
func DefaultTokenPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}

	return filepath.Join(dir, appName, tokenFileName)
}

// DefaultSnapshotPath returns the snapshot cache database location.
func DefaultSnapshotPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, appName, "snapshot.db")
}
