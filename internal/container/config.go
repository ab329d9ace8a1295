// Package container provides dependency injection and lifecycle management
// for the HR request service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis stream used to publish notifications
	Redis RedisConfig

	// Server configuration
	Server ServerConfig

	// Workflow definition settings
	Workflow WorkflowConfig

	// Request engine settings
	Request RequestConfig

	// Notification dispatch and relay settings
	Notification NotificationConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "postgres"
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the postgres connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// AutoMigrate applies the embedded migrations on start
	AutoMigrate bool
}

// RedisConfig holds the notification stream settings.
type RedisConfig struct {
	// Enabled turns on the relay worker. When false notifications stay in the inbox only.
	Enabled bool

	Addr     string
	Password string
	DB       int

	// Stream is the stream key notifications are appended to
	Stream string

	// MaxLen caps the stream length approximately; zero disables trimming
	MaxLen int64
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkflowConfig holds workflow definition settings.
type WorkflowConfig struct {
	// CacheExpiry is how long a loaded workflow graph is served from memory
	CacheExpiry time.Duration

	// TerminalSteps are step names after which a request can no longer move
	TerminalSteps []string

	// SeedFile is applied on start when set
	SeedFile string
}

// RequestConfig holds request engine settings.
type RequestConfig struct {
	Location         *time.Location
	ProtocolAttempts int
}

// NotificationConfig holds dispatcher and relay settings.
type NotificationConfig struct {
	HandlerTimeout    time.Duration
	RelayPollInterval time.Duration
	RelayBatchSize    int
	RelayMaxAttempts  int
	PublishTimeout    time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Path:            "data/hr-requests.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Stream: "hr:notifications",
			MaxLen: 100000,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Workflow: WorkflowConfig{
			CacheExpiry:   30 * time.Minute,
			TerminalSteps: append([]string(nil), entity.DefaultTerminalSteps...),
		},
		Request: RequestConfig{
			Location:         time.UTC,
			ProtocolAttempts: 3,
		},
		Notification: NotificationConfig{
			HandlerTimeout:    30 * time.Second,
			RelayPollInterval: 5 * time.Second,
			RelayBatchSize:    50,
			RelayMaxAttempts:  5,
			PublishTimeout:    10 * time.Second,
		},
	}
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if _, err := database.ParseDialect(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.DSN == "" && c.Database.Path == "" {
		return fmt.Errorf("database.path or database.dsn is required")
	}
	if c.Request.Location == nil {
		return fmt.Errorf("request.location is required")
	}
	if c.Request.ProtocolAttempts < 1 {
		return fmt.Errorf("request.protocol_attempts must be at least 1")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}
