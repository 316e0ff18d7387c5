package config

import (
	"fmt"
	"os"
	"strings"

	"series-observer/src/analysis/core"
	"series-observer/src/helpers"
	"series-observer/src/models"
	"series-observer/src/utils"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig reads a YAML file, fills unset values with defaults and validates
// the result.
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, helpers.NewConfigurationError("read config file '%s': %v", configPath, err)
	}
	return Parse(data)
}

// Parse is NewConfig without the file access.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, helpers.NewConfigurationError("parse config YAML: %v", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "series-observer"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	c.LogLevel = strings.ToUpper(c.LogLevel)
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "none"
	}
	c.Storage.DBType = strings.ToLower(c.Storage.DBType)
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = utils.DefaultRetentionDays
	}

	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 30
	}
	if c.Network.ConcurrentRequests == 0 {
		c.Network.ConcurrentRequests = 4
	}

	if c.Engine.MaxPoints == 0 {
		c.Engine.MaxPoints = utils.DefaultMaxPoints
	}
	if c.Engine.DefaultFunction == "" {
		c.Engine.DefaultFunction = models.FuncMean
	}
	if c.Sessions.CacheSize == 0 {
		c.Sessions.CacheSize = utils.DefaultSessionCacheSize
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Port <= 1024 || c.Port > 65535 {
		return helpers.NewConfigurationError("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535 || c.GrpcPort == c.Port) {
		return helpers.NewConfigurationError("invalid grpc port number: %d", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return helpers.NewConfigurationError("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return helpers.NewConfigurationError("connection string cannot be empty for postgres")
		}
	default:
		return helpers.NewConfigurationError("unknown database type %q", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return helpers.NewConfigurationError("retention days cannot be negative")
	}

	// Network
	if c.Network.RequestTimeout < 0 {
		return helpers.NewConfigurationError("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return helpers.NewConfigurationError("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests < 0 {
		return helpers.NewConfigurationError("concurrent requests must be greater than 0")
	}

	// Engine
	if c.Engine.MaxPoints < 0 {
		return helpers.NewConfigurationError("max points cannot be negative")
	}
	if _, err := core.GetAggregator(c.Engine.DefaultFunction); err != nil {
		return helpers.NewConfigurationError("default function: %v", err)
	}
	if c.Sessions.CacheSize < 0 {
		return helpers.NewConfigurationError("session cache size cannot be negative")
	}

	// Sources
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return helpers.NewConfigurationError("source %d must have a name", i)
		}
		if seen[src.Name] {
			return helpers.NewConfigurationError("duplicate source name '%s'", src.Name)
		}
		seen[src.Name] = true

		switch src.Type {
		case "file":
			if src.Path == "" {
				return helpers.NewConfigurationError("source '%s' needs a path", src.Name)
			}
		case "http":
			if src.URL == "" {
				return helpers.NewConfigurationError("source '%s' needs a url", src.Name)
			}
		case "table":
			if src.Table == "" {
				return helpers.NewConfigurationError("source '%s' needs a table reference", src.Name)
			}
			if c.Storage.DBType == "none" {
				return helpers.NewConfigurationError("source '%s' reads a table but no database is configured", src.Name)
			}
		default:
			return helpers.NewConfigurationError("source '%s' has unknown type %q", src.Name, src.Type)
		}
		switch src.Format {
		case "", models.FormatCSV, models.FormatJSON:
		default:
			return helpers.NewConfigurationError("source '%s' has unknown format %q", src.Name, src.Format)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// Address joins host and port for net.Listen.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GrpcAddress is empty when the control service is disabled.
func (c *Config) GrpcAddress() string {
	if c.GrpcPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.GrpcHost, c.GrpcPort)
}
