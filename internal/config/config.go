package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Engine    EngineConfig   `mapstructure:"engine"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	JWTSecret string         `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// EngineConfig bounds the result sets of the query, preview and export paths.
type EngineConfig struct {
	DefaultQueryLimit int `mapstructure:"default_query_limit"`
	MaxQueryLimit     int `mapstructure:"max_query_limit"`
	PreviewLimit      int `mapstructure:"preview_limit"`
	ExportLimit       int `mapstructure:"export_limit"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// DefaultEngine returns the engine bounds used when no config is loaded.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		DefaultQueryLimit: 100,
		MaxQueryLimit:     1000,
		PreviewLimit:      100,
		ExportLimit:       10000,
	}
}

func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads app.yaml from dir (and the usual fallbacks), applies
// defaults and environment overrides. A missing file is not an error.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath("../..")

	eng := DefaultEngine()
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "racecal")
	v.SetDefault("database.password", "racecal")
	v.SetDefault("database.name", "racecal")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("engine.default_query_limit", eng.DefaultQueryLimit)
	v.SetDefault("engine.max_query_limit", eng.MaxQueryLimit)
	v.SetDefault("engine.preview_limit", eng.PreviewLimit)
	v.SetDefault("engine.export_limit", eng.ExportLimit)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("jwt_secret", "changeme-secret")

	v.SetEnvPrefix("RACECAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
