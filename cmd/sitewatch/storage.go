package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sitewatch/internal/config"
	"sitewatch/internal/storage"
	"sitewatch/internal/storage/memory"
	"sitewatch/internal/storage/mysql"
	"sitewatch/internal/storage/postgres"
	"sitewatch/internal/storage/redis"
	"sitewatch/internal/storage/sqlite"
)

// openKV connects the backend selected by STORAGE_DRIVER.
func openKV(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.KV, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return sqlite.New(ctx, cfg.StorageURL)
	case "postgres", "postgresql":
		return postgres.New(ctx, cfg.StorageURL, log)
	case "mysql":
		return mysql.New(ctx, cfg.StorageURL)
	case "redis":
		return redis.New(ctx, cfg.StorageURL, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
