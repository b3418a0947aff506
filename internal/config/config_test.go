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

// inTempDir changes to an empty directory so no config.yaml or .env is found.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "banco_estado", cfg.Site)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "https://www.bancoestado.cl/", cfg.Portal.BaseURL)
	assert.Equal(t, "https://www.bancoestado.cl/personas/home", cfg.Portal.HomeURL)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Selector())
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Navigation())
	assert.Equal(t, 6*time.Second, cfg.Timeouts.PostSubmit())
	assert.Equal(t, time.Second, cfg.Timeouts.Settle())
	assert.Equal(t, 10, cfg.Limits.LedgerPages)
	assert.Equal(t, 3, cfg.Limits.DashboardRetries)
	assert.Equal(t, 20, cfg.Limits.FeedScrolls)
	assert.Equal(t, 10, cfg.Limits.CarouselSlides)
	assert.InDelta(t, 0.005, cfg.Human.TypoRate, 0.0001)
	assert.InDelta(t, 0.015, cfg.Human.PauseRate, 0.0001)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "scraper:queue", cfg.Queue.Key)
	assert.Equal(t, "scraper:tasks:", cfg.Queue.TaskKeyPrefix)
	assert.Equal(t, "scraper:control", cfg.Queue.ControlKey)
	assert.Equal(t, time.Second, cfg.Queue.Poll())
	assert.Empty(t, cfg.Backend.BaseURL)
	assert.Equal(t, "/api/categories/user", cfg.Backend.CategoriesPath)
	assert.Equal(t, "results", cfg.Backend.FallbackDir)
	assert.Empty(t, cfg.Debug.ArtifactsDir)
}

func TestLoadFromYAML(t *testing.T) {
	dir := inTempDir(t)

	yaml := `
log:
  level: debug
  format: console
browser:
  headless: false
  slow_motion_ms: 250
limits:
  ledger_pages: 3
backend:
  base_url: http://localhost:3000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser.SlowMotion())
	assert.Equal(t, 3, cfg.Limits.LedgerPages)
	assert.Equal(t, "http://localhost:3000", cfg.Backend.BaseURL)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Limits.DashboardRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := inTempDir(t)

	yaml := `
redis:
  addr: redis:6379
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SCRAPER_REDIS_ADDR", "10.0.0.5:6380")
	t.Setenv("SCRAPER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6380", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SCRAPER_QUEUE_POLL_SECS=5\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("SCRAPER_QUEUE_POLL_SECS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Queue.Poll())
}

func TestLoadBrokenYAML(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inTempDir(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.Validate("run"))
	assert.NoError(t, cfg.Validate("worker"))

	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate("run"), "run does not need redis")

	cfg.Limits.LedgerPages = 0
	assert.Error(t, cfg.Validate("run"))
	err = cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr is required")
	assert.Contains(t, err.Error(), "limits.ledger_pages must be positive")
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
