// Package config provides centralized configuration management for the
// EV2 server and the ev2ctl client. Server settings come from environment
// variables with defaults and are validated on startup so misconfiguration
// fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all server configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Batch    BatchConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Audit    AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 90s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 75s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"75s"`

	// MaxBodySize caps JSON request bodies in bytes (default: 1MB)
	MaxBodySize int64 `env:"SERVER_MAX_BODY_SIZE" default:"1048576"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates missing tables on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// BatchConfig holds limits for updateItems and deleteItems.
type BatchConfig struct {
	// MaxItems is the largest accepted batch (default: 500)
	MaxItems int `env:"BATCH_MAX_ITEMS" default:"500"`

	// MaxConcurrent is the number of batches run at once (default: 4)
	MaxConcurrent int `env:"BATCH_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a batch slot (default: 10s)
	MaxWaitTime time.Duration `env:"BATCH_MAX_WAIT_TIME" default:"10s"`

	// Timeout bounds a whole batch (default: 60s)
	Timeout time.Duration `env:"BATCH_TIMEOUT" default:"60s"`

	// QueryTimeout bounds single-item reads and writes (default: 15s)
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" default:"15s"`
}

// RateLimitConfig holds rate limiting settings per client IP.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// MutationLimit is requests per minute for write endpoints (default: 120)
	MutationLimit int `env:"RATE_LIMIT_MUTATIONS" default:"120"`

	// Burst is the number of requests allowed above the steady rate (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enables the X-API-Key check on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuditConfig holds audit log retention settings.
type AuditConfig struct {
	// RetentionDays is days to keep audit entries (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" default:"90"`

	// BatchSize is rows deleted per prune statement (default: 5000)
	BatchSize int `env:"AUDIT_PRUNE_BATCH_SIZE" default:"5000"`

	// CheckInterval is how often to run the prune job (default: 24h)
	CheckInterval time.Duration `env:"AUDIT_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
