// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Sweep    SweepConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" default:"8000"`

	// ReadHeaderTimeout is the maximum duration for reading request headers (default: 10s)
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" default:"10s"`

	// WriteTimeout is the maximum duration for writing a response.
	// Zero keeps SSE streams open indefinitely (default: 0s).
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
// The discrete DB_* variables mirror the deployment environment; DSN()
// assembles them into a pgx connection string.
type DatabaseConfig struct {
	// Host is the database server hostname (required)
	Host string `env:"DB_HOST" required:"true"`

	// Port is the database server port (default: 5432)
	Port int `env:"DB_PORT" default:"5432"`

	// Name is the database name (required)
	Name string `env:"DB_NAME" required:"true"`

	// User is the database user (required)
	User string `env:"DB_USER" required:"true"`

	// Password is the database password (required)
	Password string `env:"DB_PASSWORD" required:"true"`

	// SSLMode is the libpq-style sslmode parameter (default: prefer)
	SSLMode string `env:"DB_SSLMODE" default:"prefer"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 30m)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"30m"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 5m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
}

// UploadConfig holds file upload and analysis settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 10MiB)
	MaxFileSize int64 `env:"MAX_FILE_SIZE" default:"10485760"`

	// Folder is the directory where uploaded files are stored (default: uploads)
	Folder string `env:"UPLOAD_FOLDER" default:"uploads"`

	// ChunkSize is the number of CSV rows processed per analyzer chunk (default: 100000)
	ChunkSize int `env:"ANALYZE_CHUNK_SIZE" default:"100000"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 8)
	MaxConcurrent int `env:"MAX_CONCURRENT_UPLOADS" default:"8"`

	// DrainTimeout is how long shutdown waits for in-flight uploads (default: 30s)
	DrainTimeout time.Duration `env:"UPLOAD_DRAIN_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds CORS and proxy trust settings.
type SecurityConfig struct {
	// AllowedOrigins is the comma-separated CORS origin allowlist
	// (default: http://localhost:3000)
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored for client IP resolution
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// SweepConfig holds orphan-file reconciliation settings.
// Files in the upload folder that no database row references are
// removed once they are older than MinAge.
type SweepConfig struct {
	// Interval is how often the sweep runs; zero disables it (default: 1h)
	Interval time.Duration `env:"SWEEP_INTERVAL" default:"1h"`

	// MinAge is the minimum file age before an orphan is removed (default: 1h)
	MinAge time.Duration `env:"SWEEP_MIN_AGE" default:"1h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DSN returns the pgx connection string. The password is URL-escaped so
// credentials with reserved characters survive the round trip.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
