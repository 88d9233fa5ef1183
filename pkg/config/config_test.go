package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://www.vogue.com", cfg.Source.BaseURL)
	assert.Equal(t, "http", cfg.Source.Client)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, ModeMultiDesigner, cfg.Scraper.Mode)
	assert.Equal(t, 4, cfg.Scraper.MaxWorkers)
	assert.Equal(t, 5*time.Minute, cfg.Scraper.UnitTimeout)
	assert.Equal(t, "desc", cfg.Scraper.SeasonOrder)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source:
  base_url: https://runway.example.com
  client: browser
storage:
  backend: sqlite
  data_dir: /tmp/runway-test
scraper:
  mode: multi-season
  max_workers: 8
rate_limit:
  requests_per_minute: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://runway.example.com", cfg.Source.BaseURL)
	assert.Equal(t, "browser", cfg.Source.Client)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, ModeMultiSeason, cfg.Scraper.Mode)
	assert.Equal(t, 8, cfg.Scraper.MaxWorkers)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)

	// Unspecified values keep their defaults.
	assert.Equal(t, 10, cfg.RateLimit.BurstSize)
	assert.Equal(t, "desc", cfg.Scraper.SeasonOrder)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scraper:\n  mode: multi-season\n"), 0o644))

	t.Setenv("RUNWAY_MODE", "multi-look")
	t.Setenv("RUNWAY_MAX_WORKERS", "2")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ModeMultiLook, cfg.Scraper.Mode)
	assert.Equal(t, 2, cfg.Scraper.MaxWorkers)
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv("RUNWAY_MODE", "multi-look")
	t.Setenv("RUNWAY_STORAGE_BACKEND", "sqlite")

	flags := map[string]interface{}{
		"mode":         "single",
		"storage":      "redis",
		"redis-host":   "redis.internal",
		"redis-port":   6380,
		"workers":      1,
		"unit-timeout": 90 * time.Second,
		"sort":         "asc",
		"metrics-addr": ":9090",
	}

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, ModeSingle, cfg.Scraper.Mode)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis.internal", cfg.Storage.Redis.Host)
	assert.Equal(t, 6380, cfg.Storage.Redis.Port)
	assert.Equal(t, 1, cfg.Scraper.MaxWorkers)
	assert.Equal(t, 90*time.Second, cfg.Scraper.UnitTimeout)
	assert.Equal(t, "asc", cfg.Scraper.SeasonOrder)
	assert.Equal(t, ":9090", cfg.Scraper.MetricsAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyBaseURL", func(c *Config) { c.Source.BaseURL = "" }},
		{"BadClient", func(c *Config) { c.Source.Client = "selenium" }},
		{"BadBackend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"JSONWithoutDataDir", func(c *Config) { c.Storage.DataDir = "" }},
		{"RedisWithoutHost", func(c *Config) {
			c.Storage.Backend = BackendRedis
			c.Storage.Redis.Host = ""
		}},
		{"BadMode", func(c *Config) { c.Scraper.Mode = "parallel" }},
		{"ZeroWorkers", func(c *Config) { c.Scraper.MaxWorkers = 0 }},
		{"TooManyWorkers", func(c *Config) { c.Scraper.MaxWorkers = 64 }},
		{"BadSortOrder", func(c *Config) { c.Scraper.SeasonOrder = "random" }},
		{"ZeroRateLimit", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := Load("", map[string]interface{}{"mode": "bogus"})
	assert.Error(t, err)
}

func TestSingleModeIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scraper.Mode = ModeSingle
	cfg.Scraper.MaxWorkers = 1
	assert.NoError(t, cfg.Validate())
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "localhost", Port: 6379}
	assert.Equal(t, "localhost:6379", r.Addr())
}
