package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Request      RequestConfig      `mapstructure:"request"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds the notification stream connection
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// WorkflowConfig holds workflow definition settings
type WorkflowConfig struct {
	CacheExpiry   time.Duration `mapstructure:"cache_expiry"`
	TerminalSteps []string      `mapstructure:"terminal_steps"`
	SeedFile      string        `mapstructure:"seed_file"`
}

// RequestConfig holds request engine settings
type RequestConfig struct {
	// Timezone decides which calendar day a protocol belongs to
	Timezone         string `mapstructure:"timezone"`
	ProtocolAttempts int    `mapstructure:"protocol_attempts"`
}

// NotificationConfig holds dispatcher and relay settings
type NotificationConfig struct {
	HandlerTimeout    time.Duration `mapstructure:"handler_timeout"`
	RelayPollInterval time.Duration `mapstructure:"relay_poll_interval"`
	RelayBatchSize    int           `mapstructure:"relay_batch_size"`
	RelayMaxAttempts  int           `mapstructure:"relay_max_attempts"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := gotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/hr-requests.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "hr:notifications")
	v.SetDefault("redis.max_len", 100000)

	// Workflow defaults
	v.SetDefault("workflow.cache_expiry", 30*time.Minute)

	// Request defaults
	v.SetDefault("request.timezone", "America/Sao_Paulo")
	v.SetDefault("request.protocol_attempts", 3)

	// Notification defaults
	v.SetDefault("notification.handler_timeout", 30*time.Second)
	v.SetDefault("notification.relay_poll_interval", 5*time.Second)
	v.SetDefault("notification.relay_batch_size", 50)
	v.SetDefault("notification.relay_max_attempts", 5)
	v.SetDefault("notification.publish_timeout", 10*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds conventional variable names for secrets and connection strings
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "HR_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "HR_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "HR_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("logger.level", "HR_LOGGER_LEVEL", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres", "postgresql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Request.ProtocolAttempts < 1 {
		return fmt.Errorf("request.protocol_attempts must be at least 1")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	return nil
}

// Location returns the configured request time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Request.Timezone)
	if err != nil {
		return nil, fmt.Errorf("request.timezone %q: %w", c.Request.Timezone, err)
	}
	return loc, nil
}
