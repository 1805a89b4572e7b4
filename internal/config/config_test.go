package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.RequestsPerMinute)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 30, cfg.Extract.TimeoutSecs)
	assert.Equal(t, 3, cfg.Extract.MaxRetries)
	assert.Equal(t, 1000, cfg.Extract.RetryDelayMs)
	assert.Equal(t, 100, cfg.Scrape.MinContentChars)
	assert.Equal(t, 15, cfg.Scrape.StaticTimeoutSecs)
	assert.Equal(t, 30, cfg.Scrape.BrowserTimeoutSecs)
	assert.True(t, cfg.Scrape.BlockResources)
	assert.True(t, cfg.Rod.Enabled)
	assert.True(t, cfg.Rod.Headless)
	assert.True(t, cfg.Playwright.Enabled)
	assert.False(t, cfg.Playwright.Install)
	assert.Equal(t, 3, cfg.BrowserBreaker.FailureThreshold)
	assert.Equal(t, "@daily", cfg.Sweeper.Schedule)
	assert.Empty(t, cfg.SitePolicy.ExtraRestricted)
	assert.Empty(t, cfg.SitePolicy.RulesFile)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: intake.db
log:
  level: debug
  format: console
server:
  port: 9090
sitepolicy:
  extra_restricted:
    - wellfound.com
rod:
  stealth: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "intake.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"wellfound.com"}, cfg.SitePolicy.ExtraRestricted)
	assert.False(t, cfg.Rod.Stealth)
	// Defaults still apply for unset values
	assert.True(t, cfg.Rod.Headless)
	assert.Equal(t, 100, cfg.Scrape.MinContentChars)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INTAKE_STORE_DRIVER", "postgres")
	t.Setenv("INTAKE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("INTAKE_SERVER_PORT", "3000")
	t.Setenv("INTAKE_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("INTAKE_EXTRACT_MAX_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, 5, cfg.Extract.MaxRetries)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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

// validDefaults returns a Config with the defaults validation depends on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Extract.MaxRetries = 3
	cfg.Scrape.MinContentChars = 100
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/intake"
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStore_NoAIKeyNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "intake.db"

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = "mysql://localhost"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateScrape_NeedsNothingExternal(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("scrape"))
}

func TestValidateSubmit_Retries(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/intake"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Extract.MaxRetries = 0

	err := cfg.Validate("submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.max_retries must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 15*time.Second, Seconds(15))
	assert.Equal(t, 1500*time.Millisecond, Millis(1500))
}
