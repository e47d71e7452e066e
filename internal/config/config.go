// Package config provides centralized configuration management for the application.
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
	Backend  BackendConfig
	Job      JobConfig
	Table    TableConfig
	Session  SessionConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1, single user)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 15s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// BackendConfig points at the remote processing backend.
type BackendConfig struct {
	// URL is the backend base URL (default: http://localhost:8000)
	URL string `env:"BACKEND_URL" envAlt:"API_BASE_URL" default:"http://localhost:8000"`

	// Timeout bounds a single backend request (default: 30s)
	Timeout time.Duration `env:"BACKEND_TIMEOUT" default:"30s"`
}

// JobConfig holds run orchestration settings.
type JobConfig struct {
	// PollInterval is the delay between status polls (default: 1.5s)
	PollInterval time.Duration `env:"JOB_POLL_INTERVAL" default:"1500ms"`

	// AnimationDuration is how long the progress bar eases to a new value (default: 600ms)
	AnimationDuration time.Duration `env:"JOB_ANIMATION_DURATION" default:"600ms"`

	// AnimationFrame is the progress animation frame interval (default: 50ms)
	AnimationFrame time.Duration `env:"JOB_ANIMATION_FRAME" default:"50ms"`

	// ElapsedTick is how often the elapsed counter updates (default: 1s)
	ElapsedTick time.Duration `env:"JOB_ELAPSED_TICK" default:"1s"`

	// AutoFill seeds fill strategies from recommendations on preview (default: false)
	AutoFill bool `env:"AUTO_FILL" default:"false"`
}

// TableConfig holds result table settings.
type TableConfig struct {
	// PageSize is the number of rows per page (default: 10)
	PageSize int `env:"TABLE_PAGE_SIZE" default:"10"`

	// ExportDir, when set, receives CSV exports as files instead of the
	// backend's /download-csv endpoint
	ExportDir string `env:"EXPORT_DIR"`
}

// SessionConfig selects where the session is persisted.
type SessionConfig struct {
	// Backend is memory, redis or postgres (default: memory)
	Backend string `env:"SESSION_BACKEND" default:"memory"`

	// RedisURL is the Redis connection URL (required for redis)
	RedisURL string `env:"REDIS_URL"`

	// KeyPrefix namespaces Redis keys (default: prepflow)
	KeyPrefix string `env:"SESSION_KEY_PREFIX" default:"prepflow"`

	// DatabaseURL is the PostgreSQL connection string (required for postgres)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Key is the entry the session is stored under (default: prepflow:session)
	Key string `env:"SESSION_KEY" default:"prepflow:session"`

	// Version tags stored entries; a mismatch discards them (default: 1)
	Version int `env:"SESSION_VERSION" default:"1"`

	// MaxAge discards entries older than this; 0 keeps them forever (default: 168h)
	MaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"`

	// PurgeInterval is how often expired postgres rows are deleted (default: 1h)
	PurgeInterval time.Duration `env:"SESSION_PURGE_INTERVAL" default:"1h"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects /api routes with an X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
