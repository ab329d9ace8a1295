package config

import (
	"fmt"

	"github.com/garyjia/hr-requests/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}

	cfg := container.DefaultConfig()

	cfg.Database = container.DatabaseConfig{
		Driver:          c.Database.Driver,
		Path:            c.Database.Path,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		AutoMigrate:     c.Database.AutoMigrate,
	}
	cfg.Redis = container.RedisConfig{
		Enabled:  c.Redis.Enabled,
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Stream:   c.Redis.Stream,
		MaxLen:   c.Redis.MaxLen,
	}
	cfg.Server = container.ServerConfig{
		Host:         c.Server.Host,
		Port:         c.Server.Port,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
	}

	cfg.Workflow.CacheExpiry = c.Workflow.CacheExpiry
	cfg.Workflow.SeedFile = c.Workflow.SeedFile
	if len(c.Workflow.TerminalSteps) > 0 {
		cfg.Workflow.TerminalSteps = c.Workflow.TerminalSteps
	}

	cfg.Request = container.RequestConfig{
		Location:         loc,
		ProtocolAttempts: c.Request.ProtocolAttempts,
	}
	cfg.Notification = container.NotificationConfig{
		HandlerTimeout:    c.Notification.HandlerTimeout,
		RelayPollInterval: c.Notification.RelayPollInterval,
		RelayBatchSize:    c.Notification.RelayBatchSize,
		RelayMaxAttempts:  c.Notification.RelayMaxAttempts,
		PublishTimeout:    c.Notification.PublishTimeout,
	}

	return cfg, nil
}
