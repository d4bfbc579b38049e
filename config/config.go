// api/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ShopLens analytics API.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	CORS   CORSConfig
	Upload UploadConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	Origin string
}

// UploadConfig bounds dataset archive uploads. MaxBytes caps the accepted
// archive size; RPS/Burst feed the token bucket on the upload endpoint.
type UploadConfig struct {
	MaxBytes         int64
	RateLimitEnabled bool
	RPS              float64
	Burst            int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("SHOPLENS_HTTP_ADDR", ":8080"),
			Env:             getEnv("SHOPLENS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("SHOPLENS_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("SHOPLENS_LOG_LEVEL", "info"),
			Format: getEnv("SHOPLENS_LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			Origin: getEnv("SHOPLENS_FE_ORIGIN", "http://localhost:3000"),
		},
		Upload: UploadConfig{
			MaxBytes:         getInt64Env("SHOPLENS_UPLOAD_MAX_BYTES", 256<<20),
			RateLimitEnabled: getBoolEnv("SHOPLENS_UPLOAD_RATE_LIMIT_ENABLED", true),
			RPS:              getFloatEnv("SHOPLENS_UPLOAD_RATE_LIMIT_RPS", 1),
			Burst:            getIntEnv("SHOPLENS_UPLOAD_RATE_LIMIT_BURST", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("SHOPLENS_UPLOAD_MAX_BYTES must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.RateLimitEnabled && (c.Upload.RPS <= 0 || c.Upload.Burst <= 0) {
		return fmt.Errorf("upload rate limit requires positive RPS and burst")
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getInt64Env(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
