package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chtmp runs the test from an empty directory so no curator.yaml is found
// unless the test writes one.
func chtmp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "curator.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.SuggestModel)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.InDelta(t, 2.0, cfg.Anthropic.RateRPS, 0.001)
	assert.Equal(t, 4, cfg.Extraction.MaxConcurrency)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 50, cfg.Review.QueueLimit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Attributes.File)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtmp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/curator
log:
  level: debug
  format: console
server:
  port: 9090
jobs:
  workers: 8
attributes:
  file: attrs.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "curator.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/curator", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, "attrs.yaml", cfg.Attributes.File)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Review.QueueLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtmp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "curator.yaml"), []byte(yaml), 0644))

	t.Setenv("CURATOR_STORE_DRIVER", "postgres")
	t.Setenv("CURATOR_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtmp(t)

	t.Setenv("CURATOR_SERVER_PORT", "3000")
	t.Setenv("CURATOR_ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.APIKey)
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "curator.db"
	cfg.Anthropic.RateRPS = 2
	cfg.Jobs.Workers = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateStoreMode(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Path = ""
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite or postgres")
}

func TestValidateModelMode(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.api_key is required")

	cfg.Anthropic.APIKey = "sk-ant-test"
	assert.NoError(t, cfg.Validate("model"))
}

func TestValidateServeMode(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.APIKey = "sk-ant-test"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 8080
	cfg.Jobs.Workers = 0
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs.workers must be between 1 and 32")

	cfg.Jobs.Workers = 33
	assert.Error(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
