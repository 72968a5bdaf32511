package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "outreach-cache.db", cfg.Cache.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"hunter", "apollo"}, cfg.Providers.Precedence)
	assert.Equal(t, 25, cfg.Providers.MaxBatchSize)
	assert.Equal(t, 4, cfg.Providers.Concurrency)
	assert.Equal(t, 5, cfg.Providers.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Providers.Retry.InitialBackoffMs)
	assert.InDelta(t, 2.0, cfg.Providers.Retry.Multiplier, 0.001)
	assert.Equal(t, "https://api.hunter.io", cfg.Providers.Hunter.BaseURL)
	assert.Equal(t, 720, cfg.Providers.Hunter.TTLHours)
	assert.Equal(t, 168, cfg.Providers.Apollo.TTLHours)
	assert.Equal(t, []string{"last_name", "company"}, cfg.Validation.RequiredFields)
	assert.Equal(t, 50, cfg.Validation.MinEmailConfidence)
	assert.Equal(t, "scoring.yaml", cfg.Scoring.RulesPath)
	assert.Equal(t, "mapping.yaml", cfg.Mapping.Path)
	assert.Equal(t, "https://login.salesforce.com", cfg.Sync.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
cache:
  driver: memory
log:
  level: debug
  format: console
providers:
  run_cap: 100
  precedence: [apollo, hunter]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Providers.RunCap)
	assert.Equal(t, []string{"apollo", "hunter"}, cfg.Providers.Precedence)
	// Defaults still apply for unset values
	assert.Equal(t, 25, cfg.Providers.MaxBatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
cache:
  driver: memory
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_CACHE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("OUTREACH_PROVIDERS_MAX_BATCH_SIZE", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Providers.MaxBatchSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
cache:
  driver: dynamo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Cache:     CacheConfig{Driver: "sqlite"},
			Providers: ProvidersConfig{Precedence: []string{"hunter"}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("empty precedence", func(t *testing.T) {
		cfg := base()
		cfg.Providers.Precedence = nil
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "precedence")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := base()
		cfg.Providers.Precedence = []string{"clearbit"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("negative run cap", func(t *testing.T) {
		cfg := base()
		cfg.Providers.RunCap = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run_cap")
	})
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
