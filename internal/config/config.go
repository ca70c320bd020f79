// Package config defines service configuration and its layered loading.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/face-attendance/internal/logging"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// StorageDriver selects postgres or memory.
	StorageDriver string `koanf:"storage_driver"`
	DatabaseDSN   string `koanf:"database_dsn"`

	// RedisAddr enables the day-marker and record caches when set.
	RedisAddr string `koanf:"redis_addr"`

	// FaceProviderAddr enables the remote face provider when set.
	FaceProviderAddr    string        `koanf:"face_provider_addr"`
	FaceProviderTimeout time.Duration `koanf:"face_provider_timeout"`

	// EmbeddingDim is the required length of submitted face vectors; 0
	// disables the check.
	EmbeddingDim int `koanf:"embedding_dim"`

	JWTSecret   string        `koanf:"jwt_secret"`
	JWTAudience string        `koanf:"jwt_audience"`
	JWTTTL      time.Duration `koanf:"jwt_ttl"`

	// Timezone is the IANA zone used for date keys and lateness.
	Timezone string `koanf:"timezone"`

	// SendGridAPIKey enables late-arrival emails when set.
	SendGridAPIKey   string        `koanf:"sendgrid_api_key"`
	SendGridFrom     string        `koanf:"sendgrid_from"`
	SendGridFromName string        `koanf:"sendgrid_from_name"`
	NotifyTimeout    time.Duration `koanf:"notify_timeout"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:                ":8080",
		LogLevel:            "info",
		StorageDriver:       StoragePostgres,
		DatabaseDSN:         "host=postgres user=postgres password=postgres dbname=attendance port=5432 sslmode=disable",
		FaceProviderTimeout: 15 * time.Second,
		EmbeddingDim:        128,
		JWTSecret:           "dev-secret",
		JWTTTL:              24 * time.Hour,
		Timezone:            "Local",
		SendGridFrom:        "attendance@example.com",
		SendGridFromName:    "Attendance",
		NotifyTimeout:       10 * time.Second,
		ShutdownTimeout:     15 * time.Second,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}
	switch c.StorageDriver {
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return invalid("database_dsn is required for the postgres driver")
		}
	case StorageMemory:
	default:
		return invalid("storage_driver must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageDriver)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return invalid("jwt_secret must not be empty")
	}
	if c.EmbeddingDim < 0 {
		return invalid("embedding_dim must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"face_provider_timeout": c.FaceProviderTimeout,
		"jwt_ttl":               c.JWTTTL,
		"notify_timeout":        c.NotifyTimeout,
		"shutdown_timeout":      c.ShutdownTimeout,
	} {
		if d <= 0 {
			return invalid("%s must be positive", name)
		}
	}
	if _, err := c.Location(); err != nil {
		return invalid("timezone: %v", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
