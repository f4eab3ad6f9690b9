package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for tabular-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
}

// EngineConfig holds the query defaults the composer applies. These are
// explicit constants passed into the composer, never ambient state.
type EngineConfig struct {
	// DefaultRange is the page size used when a search does not specify one.
	DefaultRange int `yaml:"default_range" env:"ENGINE_DEFAULT_RANGE" env-default:"50"`

	// DefaultStart is the row offset used when a search does not specify one.
	DefaultStart int `yaml:"default_start" env:"ENGINE_DEFAULT_START" env-default:"0"`

	// ActiveValue is the value injected for a schema's active flag field when
	// the caller does not filter on it.
	ActiveValue int `yaml:"active_value" env:"ENGINE_ACTIVE_VALUE" env-default:"1"`
}

// DatabaseConfig holds storage connection configuration.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"tabular"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"tabular"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// URL builds a connection URL from the individual fields.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Load reads configuration from config.yaml when present, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}
