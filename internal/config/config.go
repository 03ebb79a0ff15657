// Package config loads runtime settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatroom/internal/pubsub"
)

// Defaults applied when a key is unset or invalid.
const (
	DefaultAddr             = ":3000"
	DefaultGracePeriod      = 60 * time.Second
	DefaultIdleTimeout      = 30 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultHistoryCapacity  = 100
	DefaultRateLimitMax     = 5
	DefaultRateLimitWindow  = time.Second
	DefaultUploadDir        = "uploads"
	DefaultUploadMaxBytes   = 10 << 20
	DefaultUploadRatePerSec = 10
)

// DefaultUploadTypes is the MIME allow-list for uploads.
var DefaultUploadTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
}

// Provider exposes the settings the application reads.
type Provider interface {
	GetAddr() string
	GetLogFormat() string
	GetLogLevel() string
	GetGracePeriod() time.Duration
	GetIdleTimeout() time.Duration
	GetSweepInterval() time.Duration
	GetHistoryCapacity() int
	GetRateLimit() (int, time.Duration)
	GetUploadDir() string
	GetUploadMaxBytes() int64
	GetUploadAllowedTypes() []string
	GetUploadRatePerSec() float64
	GetAllowedOrigins() []string
	GetTracing() pubsub.TracingConfig
}

// Config holds all configuration for the application.
type Config struct {
	Addr      string
	LogFormat string
	LogLevel  string

	GracePeriod     time.Duration
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	HistoryCapacity int
	RateLimitMax    int
	RateLimitWindow time.Duration

	UploadDir          string
	UploadMaxBytes     int64
	UploadAllowedTypes []string
	UploadRatePerSec   float64

	AllowedOrigins []string
	Tracing        pubsub.TracingConfig
}

var _ Provider = (*Config)(nil)

// New loads configuration from a .env file, if any, and the environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() *Config {
	addr := os.Getenv("APP_ADDR")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + strings.TrimPrefix(port, ":")
		} else {
			addr = DefaultAddr
		}
	}

	return &Config{
		Addr:      addr,
		LogFormat: os.Getenv("LOG_FORMAT"),
		LogLevel:  os.Getenv("LOG_LEVEL"),

		GracePeriod:     duration("ROOM_GRACE_PERIOD", DefaultGracePeriod),
		IdleTimeout:     duration("IDLE_TIMEOUT", DefaultIdleTimeout),
		SweepInterval:   duration("SWEEP_INTERVAL", DefaultSweepInterval),
		HistoryCapacity: integer("HISTORY_CAPACITY", DefaultHistoryCapacity),
		RateLimitMax:    integer("RATE_LIMIT_MAX", DefaultRateLimitMax),
		RateLimitWindow: duration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),

		UploadDir:          stringOr("UPLOAD_DIR", DefaultUploadDir),
		UploadMaxBytes:     int64(integer("UPLOAD_MAX_BYTES", DefaultUploadMaxBytes)),
		UploadAllowedTypes: list("UPLOAD_ALLOWED_TYPES", DefaultUploadTypes),
		UploadRatePerSec:   float("UPLOAD_RATE_PER_SEC", DefaultUploadRatePerSec),

		AllowedOrigins: list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Tracing:        pubsub.LoadTracingConfigFromEnv(),
	}
}

func (c *Config) GetAddr() string                  { return c.Addr }
func (c *Config) GetLogFormat() string             { return c.LogFormat }
func (c *Config) GetLogLevel() string              { return c.LogLevel }
func (c *Config) GetGracePeriod() time.Duration    { return c.GracePeriod }
func (c *Config) GetIdleTimeout() time.Duration    { return c.IdleTimeout }
func (c *Config) GetSweepInterval() time.Duration  { return c.SweepInterval }
func (c *Config) GetHistoryCapacity() int          { return c.HistoryCapacity }
func (c *Config) GetUploadDir() string             { return c.UploadDir }
func (c *Config) GetUploadMaxBytes() int64         { return c.UploadMaxBytes }
func (c *Config) GetUploadAllowedTypes() []string  { return c.UploadAllowedTypes }
func (c *Config) GetUploadRatePerSec() float64     { return c.UploadRatePerSec }
func (c *Config) GetAllowedOrigins() []string      { return c.AllowedOrigins }
func (c *Config) GetTracing() pubsub.TracingConfig { return c.Tracing }

// GetRateLimit returns the per-connection message limit and its window.
func (c *Config) GetRateLimit() (int, time.Duration) {
	return c.RateLimitMax, c.RateLimitWindow
}

func stringOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("Ignoring invalid duration, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

func integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("Ignoring invalid integer, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		slog.Warn("Ignoring invalid number, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return f
}

func list(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
