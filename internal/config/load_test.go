package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://www.googleapis.com/drive/v3", cfg.Drive.BaseURL)
	assert.Equal(t, "https://www.googleapis.com/upload/drive/v3", cfg.Drive.UploadURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Storage.TokenPath)
	assert.NotEmpty(t, cfg.Storage.SnapshotPath)
	assert.Empty(t, cfg.Auth.ClientID)

	require.NoError(t, Validate(cfg))
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
[auth]
client_id = "abc.apps.googleusercontent.com"

[drive]
base_url = "http://localhost:9999/drive/v3"
upload_url = "http://localhost:9999/upload/drive/v3"

[storage]
token_path = "/tmp/t/token"
snapshot_path = "/tmp/t/snapshot.db"

[logging]
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc.apps.googleusercontent.com", cfg.Auth.ClientID)
	assert.Equal(t, "http://localhost:9999/drive/v3", cfg.Drive.BaseURL)
	assert.Equal(t, "http://localhost:9999/upload/drive/v3", cfg.Drive.UploadURL)
	assert.Equal(t, "/tmp/t/token", cfg.Storage.TokenPath)
	assert.Equal(t, "/tmp/t/snapshot.db", cfg.Storage.SnapshotPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[auth]
client_id = "abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Auth.ClientID)
	assert.Equal(t, "https://www.googleapis.com/drive/v3", cfg.Drive.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
[auth]
client_id = "abc"
client_secrt = "typo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "auth.client_secrt")
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `[auth`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty base url",
			content: "[drive]\nbase_url = \"\"\n",
			wantErr: "base_url",
		},
		{
			name:    "empty upload url",
			content: "[drive]\nupload_url = \"\"\n",
			wantErr: "upload_url",
		},
		{
			name:    "empty token path",
			content: "[storage]\ntoken_path = \"\"\n",
			wantErr: "token_path",
		},
		{
			name:    "bad log level",
			content: "[logging]\nlog_level = \"loud\"\n",
			wantErr: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, err := LoadOrDefault(missing)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := writeConfig(t, "[auth]\nclient_id = \"abc\"\n")

	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Auth.ClientID)
}

func TestResolve_Precedence(t *testing.T) {
	filePath := writeConfig(t, `
[auth]
client_id = "from-file"
`)

	t.Run("file only", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		t.Setenv(EnvClientID, "")

		cfg, err := Resolve(filePath, "")
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Auth.ClientID)
	})

	t.Run("env config path", func(t *testing.T) {
		t.Setenv(EnvConfig, filePath)
		t.Setenv(EnvClientID, "")

		cfg, err := Resolve("", "")
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Auth.ClientID)
	})

	t.Run("env client id beats file", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		t.Setenv(EnvClientID, "from-env")

		cfg, err := Resolve(filePath, "")
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Auth.ClientID)
	})

	t.Run("cli beats env and file", func(t *testing.T) {
		t.Setenv(EnvConfig, "")
		t.Setenv(EnvClientID, "from-env")

		cfg, err := Resolve(filePath, "from-cli")
		require.NoError(t, err)
		assert.Equal(t, "from-cli", cfg.Auth.ClientID)
	})

	t.Run("cli config path beats env path", func(t *testing.T) {
		other := writeConfig(t, "[auth]\nclient_id = \"from-other-file\"\n")

		t.Setenv(EnvConfig, filePath)
		t.Setenv(EnvClientID, "")

		cfg, err := Resolve(other, "")
		require.NoError(t, err)
		assert.Equal(t, "from-other-file", cfg.Auth.ClientID)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	cfg.Logging.Level = "warn"
	require.NoError(t, Validate(cfg))

	cfg.Logging.Level = ""
	require.Error(t, Validate(cfg))
}
