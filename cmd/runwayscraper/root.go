package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/logger"
)

var (
	// Version information, overridden at build time via -ldflags.
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	storageBackend string
	dataDir       string
	redisHost     string
	redisPort     int
	redisDB       int
	redisPassword string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "runwayscraper",
	Short: "A checkpointed runway show catalog extractor",
	Long: `Runway Scraper walks a fashion publication's runway archive and builds a
local catalog of seasons, designers, looks, and their images.

Features:
  - Resumable runs backed by JSON, SQLite, or Redis storage
  - Concurrent extraction with per-unit timeouts and retries
  - Smart rate limiting to stay within the source's tolerances
  - Plain HTTP or headless browser page fetching
  - Secure session credential storage using the system keychain

Extraction is idempotent: re-running a finished instance skips everything
already recorded, and an interrupted run picks up where it stopped.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.runwayscraper.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storageBackend, "storage", "", "storage backend (json, sqlite, redis)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for instance data and checkpoints")
	rootCmd.PersistentFlags().StringVar(&redisHost, "redis-host", "", "redis host for the redis backend")
	rootCmd.PersistentFlags().IntVar(&redisPort, "redis-port", 0, "redis port for the redis backend")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", -1, "redis database number")
	rootCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", "", "redis password")

	rootCmd.SetVersionTemplate(`Runway Scraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags that map onto configuration keys.
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if storageBackend != "" {
		flags["storage"] = storageBackend
	}
	if dataDir != "" {
		flags["data-dir"] = dataDir
	}
	if redisHost != "" {
		flags["redis-host"] = redisHost
	}
	if redisPort > 0 {
		flags["redis-port"] = redisPort
	}
	if redisDB >= 0 {
		flags["redis-db"] = redisDB
	}
	if redisPassword != "" {
		flags["redis-password"] = redisPassword
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// loadConfig loads configuration and initializes the process logger.
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	for k, v := range globalFlags() {
		if _, ok := flags[k]; !ok {
			flags[k] = v
		}
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a flag value like "5m" or "90s", returning zero on
// empty input so the configured default applies.
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
