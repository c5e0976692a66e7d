package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Metadata backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port               string
	StoragePath        string
	MetadataBackend    string
	DatabaseURL        string
	RedisURL           string
	MaxFileSize        int64
	DefaultExpiryHours int
	DefaultRetention   time.Duration
	CleanupInterval    time.Duration
	ControlFile        string
	SiteTitle          string
	BaseURL            string
	ShutdownTimeout    time.Duration
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory if one exists. Variables already set in the
// environment win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	port := getEnv("PORT", "8080")
	return &Config{
		Port:               port,
		StoragePath:        getEnv("STORAGE_PATH", "./uploads"),
		MetadataBackend:    getEnv("METADATA_BACKEND", BackendFile),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		MaxFileSize:        getEnvInt64("MAX_FILE_SIZE", 5*1024*1024*1024), // 5GB
		DefaultExpiryHours: getEnvInt("DEFAULT_EXPIRY_HOURS", 24),
		DefaultRetention:   getEnvDuration("DEFAULT_RETENTION_HOURS", 24*time.Hour),
		CleanupInterval:    getEnvDuration("CLEANUP_INTERVAL_HOURS", 1*time.Hour),
		ControlFile:        getEnv("CONTROL_FILE", "./config.json"),
		SiteTitle:          getEnv("SITE_TITLE", "文件中转站"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:"+port),
		ShutdownTimeout:    getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.MetadataBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres metadata backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis metadata backend")
		}
	default:
		return fmt.Errorf("unknown METADATA_BACKEND %q", c.MetadataBackend)
	}
	if c.StoragePath == "" {
		return errors.New("STORAGE_PATH must not be empty")
	}
	if c.MaxFileSize <= 0 {
		return errors.New("MAX_FILE_SIZE must be positive")
	}
	if c.DefaultExpiryHours <= 0 {
		return errors.New("DEFAULT_EXPIRY_HOURS must be positive")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("CLEANUP_INTERVAL_HOURS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
		slog.Warn("invalid integer setting, using default", "key", key, "value", val)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("invalid integer setting, using default", "key", key, "value", val)
	}
	return fallback
}

// getEnvDuration reads a value expressed in (possibly fractional) hours.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
		slog.Warn("invalid duration setting, using default", "key", key, "value", val)
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		slog.Warn("invalid duration setting, using default", "key", key, "value", val)
	}
	return fallback
}
