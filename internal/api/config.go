// Package api provides the HTTP server for vidguard. The server owns the echo
// instance and middleware stack while the JSON endpoints live in the v2
// subpackage.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "1M"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string
	Port string

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // maximum request body size, e.g. "1M"

	// Submission rate limiting per client IP, zero disables
	RateLimit float64
	RateBurst int

	// ServeMetrics mounts /metrics on this server
	ServeMetrics bool

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	if host, port, err := net.SplitHostPort(settings.WebServer.Listen); err == nil {
		cfg.Host = host
		cfg.Port = port
	} else if settings.WebServer.Listen != "" {
		cfg.Port = settings.WebServer.Listen
	}

	cfg.RateLimit = settings.WebServer.RateLimit
	cfg.RateBurst = settings.WebServer.RateBurst

	// metrics share the API listener unless telemetry has its own
	cfg.ServeMetrics = settings.Telemetry.Enabled && settings.Telemetry.Listen == ""

	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return configError("port is required")
	}
	if c.ReadTimeout <= 0 {
		return configError("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return configError("write timeout must be positive")
	}
	if c.RateLimit < 0 {
		return configError("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return configError("rate burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

func configError(msg string) error {
	return errors.Newf("%s", msg).
		Component("api").
		Category(errors.CategoryConfiguration).
		Build()
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, rate_limit=%.2f/s, debug=%v",
		c.Address(), c.RateLimit, c.Debug)
}
