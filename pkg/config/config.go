package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Parallelization modes accepted by the scheduler.
const (
	ModeSingle        = "single"
	ModeMultiSeason   = "multi-season"
	ModeMultiDesigner = "multi-designer"
	ModeMultiLook     = "multi-look"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all configuration options for the runway scraper
type Config struct {
	// Source site settings
	Source SourceConfig `yaml:"source" json:"source"`

	// Storage backend selection and settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Scraper scheduling settings
	Scraper ScraperConfig `yaml:"scraper" json:"scraper"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behavior for transient failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig holds settings for the scraped site and page client
type SourceConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	UserAgent     string `yaml:"user_agent" json:"user_agent"`
	SessionCookie string `yaml:"session_cookie" json:"session_cookie"`
	// Client selects the page client implementation: "http" or "browser"
	Client string `yaml:"client" json:"client"`
	// PageCacheSize bounds the LRU cache of fetched listing pages
	PageCacheSize int `yaml:"page_cache_size" json:"page_cache_size"`
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	Backend    string      `yaml:"backend" json:"backend"`
	DataDir    string      `yaml:"data_dir" json:"data_dir"`
	SQLitePath string      `yaml:"sqlite_path" json:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig holds connection settings for the Redis backend
type RedisConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	DB       int    `yaml:"db" json:"db"`
	Password string `yaml:"password" json:"password"`
}

// Addr returns the host:port address for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ScraperConfig holds scheduling and concurrency settings
type ScraperConfig struct {
	Mode        string        `yaml:"mode" json:"mode"`
	MaxWorkers  int           `yaml:"max_workers" json:"max_workers"`
	UnitTimeout time.Duration `yaml:"unit_timeout" json:"unit_timeout"`
	// SeasonOrder controls dispatch order of seasons: "asc" (oldest first) or "desc"
	SeasonOrder string `yaml:"season_order" json:"season_order"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// RateLimitConfig holds rate limiting configuration for page fetches
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry behavior for transient failures
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:       "https://www.vogue.com",
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			Client:        "http",
			PageCacheSize: 256,
		},
		Storage: StorageConfig{
			Backend: BackendJSON,
			DataDir: "data",
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
				DB:   0,
			},
		},
		Scraper: ScraperConfig{
			Mode:        ModeMultiDesigner,
			MaxWorkers:  4,
			UnitTimeout: 5 * time.Minute,
			SeasonOrder: "desc",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    2 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("RUNWAY_BASE_URL"); baseURL != "" {
		c.Source.BaseURL = baseURL
	}
	if cookie := os.Getenv("RUNWAY_SESSION_COOKIE"); cookie != "" {
		c.Source.SessionCookie = cookie
	}
	if userAgent := os.Getenv("RUNWAY_USER_AGENT"); userAgent != "" {
		c.Source.UserAgent = userAgent
	}
	if backend := os.Getenv("RUNWAY_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if dataDir := os.Getenv("RUNWAY_DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if host := os.Getenv("RUNWAY_REDIS_HOST"); host != "" {
		c.Storage.Redis.Host = host
	}
	if port := os.Getenv("RUNWAY_REDIS_PORT"); port != "" {
		var val int
		fmt.Sscanf(port, "%d", &val)
		if val > 0 {
			c.Storage.Redis.Port = val
		}
	}
	if password := os.Getenv("RUNWAY_REDIS_PASSWORD"); password != "" {
		c.Storage.Redis.Password = password
	}
	if workers := os.Getenv("RUNWAY_MAX_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Scraper.MaxWorkers = val
		}
	}
	if mode := os.Getenv("RUNWAY_MODE"); mode != "" {
		c.Scraper.Mode = mode
	}
	if addr := os.Getenv("RUNWAY_METRICS_ADDR"); addr != "" {
		c.Scraper.MetricsAddr = addr
	}
	if logLevel := os.Getenv("RUNWAY_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".runwayscraper.yaml",
		".runwayscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "runwayscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "runwayscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".runwayscraper.yaml"),
		filepath.Join(os.Getenv("HOME"), ".runwayscraper.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source base URL is required"))
	}
	if c.Source.Client != "http" && c.Source.Client != "browser" {
		errs = append(errs, errors.New("source client must be http or browser"))
	}
	if c.Source.PageCacheSize <= 0 {
		errs = append(errs, errors.New("page cache size must be positive"))
	}

	switch c.Storage.Backend {
	case BackendJSON:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("data directory is required for json storage"))
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" && c.Storage.DataDir == "" {
			errs = append(errs, errors.New("sqlite path or data directory is required for sqlite storage"))
		}
	case BackendRedis:
		if c.Storage.Redis.Host == "" {
			errs = append(errs, errors.New("redis host is required for redis storage"))
		}
		if c.Storage.Redis.Port <= 0 {
			errs = append(errs, errors.New("redis port must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage backend: %s", c.Storage.Backend))
	}

	validModes := map[string]bool{
		ModeSingle: true, ModeMultiSeason: true, ModeMultiDesigner: true, ModeMultiLook: true,
	}
	if !validModes[c.Scraper.Mode] {
		errs = append(errs, fmt.Errorf("invalid mode: %s", c.Scraper.Mode))
	}
	if c.Scraper.MaxWorkers <= 0 {
		errs = append(errs, errors.New("max workers must be positive"))
	}
	if c.Scraper.MaxWorkers > 16 {
		errs = append(errs, errors.New("max workers should not exceed 16"))
	}
	if c.Scraper.UnitTimeout <= 0 {
		errs = append(errs, errors.New("unit timeout must be positive"))
	}
	if c.Scraper.SeasonOrder != "asc" && c.Scraper.SeasonOrder != "desc" {
		errs = append(errs, errors.New("season order must be asc or desc"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max attempts cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if backend, ok := flags["storage"].(string); ok && backend != "" {
		c.Storage.Backend = backend
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if host, ok := flags["redis-host"].(string); ok && host != "" {
		c.Storage.Redis.Host = host
	}
	if port, ok := flags["redis-port"].(int); ok && port > 0 {
		c.Storage.Redis.Port = port
	}
	if db, ok := flags["redis-db"].(int); ok && db >= 0 {
		c.Storage.Redis.DB = db
	}
	if password, ok := flags["redis-password"].(string); ok && password != "" {
		c.Storage.Redis.Password = password
	}
	if mode, ok := flags["mode"].(string); ok && mode != "" {
		c.Scraper.Mode = mode
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Scraper.MaxWorkers = workers
	}
	if timeout, ok := flags["unit-timeout"].(time.Duration); ok && timeout > 0 {
		c.Scraper.UnitTimeout = timeout
	}
	if order, ok := flags["sort"].(string); ok && order != "" {
		c.Scraper.SeasonOrder = order
	}
	if client, ok := flags["client"].(string); ok && client != "" {
		c.Source.Client = client
	}
	if maxAttempts, ok := flags["max-retries"].(int); ok && maxAttempts > 0 {
		c.Retry.MaxAttempts = maxAttempts
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Scraper.MetricsAddr = addr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".runwayscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
