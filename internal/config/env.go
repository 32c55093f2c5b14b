package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "DRIVECONF_CONFIG"
	EnvClientID = "DRIVECONF_CLIENT_ID"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DRIVECONF_CONFIG: override config file path
	ClientID   string // DRIVECONF_CLIENT_ID: override OAuth2 client id
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ClientID:   os.Getenv(EnvClientID),
	}
}

// Resolve loads configuration applying the override chain:
// defaults -> config file -> environment -> CLI flags. cliConfigPath and
// cliClientID come from command-line flags and win over everything.
func Resolve(cliConfigPath, cliClientID string) (*Config, error) {
	env := ReadEnvOverrides()

	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ClientID != "" {
		cfg.Auth.ClientID = env.ClientID
	}

	if cliClientID != "" {
		cfg.Auth.ClientID = cliClientID
	}

	return cfg, nil
}
