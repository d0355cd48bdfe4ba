// Package config provides centralized configuration management for the portal.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Business BusinessConfig
	Sweep    SweepConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a single request, including blob validation (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true" secret:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// StorageConfig holds Azure Blob Storage settings.
type StorageConfig struct {
	AccountName string `env:"AZURE_STORAGE_ACCOUNT_NAME" required:"true"`
	AccountKey  string `env:"AZURE_STORAGE_ACCOUNT_KEY" required:"true" secret:"true"`
	Container   string `env:"AZURE_STORAGE_CONTAINER_NAME" default:"uploads"`

	// Endpoint overrides the public blob endpoint, e.g. for Azurite
	Endpoint string `env:"AZURE_STORAGE_ENDPOINT"`

	// SASExpiry is the lifetime of upload URLs and PENDING sessions (default: 10m)
	SASExpiry time.Duration `env:"SAS_EXPIRY" default:"10m"`

	MaxRetries int `env:"AZURE_STORAGE_MAX_RETRIES" default:"3"`

	// CreateContainer creates the container at startup when missing (default: false)
	CreateContainer bool `env:"AZURE_STORAGE_CREATE_CONTAINER" default:"false"`
}

// AuthConfig holds token and password hashing settings.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" required:"true" secret:"true"`
	TokenTTL  time.Duration `env:"JWT_EXPIRY" default:"24h"`

	// Argon2id cost parameters
	HashMemoryKiB   int `env:"ARGON2_MEMORY_KIB" default:"65536"`
	HashIterations  int `env:"ARGON2_ITERATIONS" default:"3"`
	HashParallelism int `env:"ARGON2_PARALLELISM" default:"4"`
}

// UploadConfig holds CSV upload and validation settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 150MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"157286400"`

	AllowedMimeTypes []string `env:"UPLOAD_ALLOWED_MIME_TYPES" default:"text/csv,application/vnd.ms-excel"`

	// MaxConcurrent is the maximum number of parallel validations (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a validation slot (default: 15s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"15s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the general limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// LoginAttempts per LoginWindow per IP (default: 5 per 15m)
	LoginAttempts int           `env:"RATE_LIMIT_LOGIN_ATTEMPTS" default:"5"`
	LoginWindow   time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" default:"15m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is the CORS allow-list
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"http://localhost:5173"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// BusinessConfig holds settings of the business calendar.
type BusinessConfig struct {
	Timezone string `env:"BUSINESS_TIMEZONE" default:"America/Bogota"`
}

// SweepConfig controls the stale session sweeper.
type SweepConfig struct {
	Enabled  bool          `env:"SWEEP_ENABLED" default:"true"`
	Interval time.Duration `env:"SWEEP_INTERVAL" default:"5m"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
