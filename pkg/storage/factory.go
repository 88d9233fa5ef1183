package storage

import (
	"path/filepath"

	"runwayscraper/pkg/config"
	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
)

// NewEngine constructs the engine named by cfg.Backend. instanceID may be
// empty to start a fresh instance; backends that hold a single instance
// (sqlite, redis) adopt the stored one instead of creating a sibling.
func NewEngine(cfg config.StorageConfig, instanceID string, log logger.Logger) (Engine, error) {
	switch cfg.Backend {
	case config.BackendJSON:
		return NewJSONEngine(cfg.DataDir, instanceID, log)
	case config.BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "runway.db")
		}
		return NewSQLiteEngine(path, instanceID, log)
	case config.BackendRedis:
		return NewRedisEngine(cfg.Redis, instanceID, log)
	default:
		return nil, errors.Validation("unknown storage backend %q", cfg.Backend)
	}
}
