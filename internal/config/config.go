package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the process configuration values.
type Config struct {
	StorageDriver string
	StorageURL    string
	RedisPassword string
	RedisDB       int

	HTTPPort      string
	CycleInterval time.Duration
	// MaxConcurrency bounds in-flight probes per cycle; 0 means unbounded.
	MaxConcurrency    int
	ProbeTimeout      time.Duration
	CertCheckInterval time.Duration
	CleanupInterval   time.Duration
	NotifyTimeout     time.Duration
	ShutdownGrace     time.Duration
	SitesFile         string
	Timezone          string
	LogLevel          string
	AdminToken        string
	DisableScheduler  bool
}

// Load loads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		StorageDriver:     getEnv("STORAGE_DRIVER", "sqlite"),
		StorageURL:        getEnv("STORAGE_URL", "sitewatch.db"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		CycleInterval:     getEnvDuration("CYCLE_INTERVAL", time.Minute),
		MaxConcurrency:    getEnvInt("MAX_CONCURRENCY", 0),
		ProbeTimeout:      getEnvDuration("PROBE_TIMEOUT", 15*time.Second),
		CertCheckInterval: getEnvDuration("CERT_CHECK_INTERVAL", time.Hour),
		CleanupInterval:   getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		NotifyTimeout:     getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		ShutdownGrace:     getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
		SitesFile:         getEnv("SITES_FILE", ""),
		Timezone:          getEnv("TIMEZONE", "Asia/Shanghai"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		DisableScheduler:  getEnvBool("DISABLE_SCHEDULER", false),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
