package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Archive configuration
	Archive ArchiveConfig `mapstructure:"archive"`

	// Sync configuration
	Sync SyncConfig `mapstructure:"sync"`

	// Enrichment configuration
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // memory, neo4j
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// CacheConfig holds the strength snapshot cache configuration
type CacheConfig struct {
	Driver string `mapstructure:"driver"` // memory, badger
	Path   string `mapstructure:"path"`
}

// ArchiveConfig holds the sync audit archive configuration
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SyncConfig holds sync run tuning
type SyncConfig struct {
	MaxItems     int `mapstructure:"max_items"`
	LookbackDays int `mapstructure:"lookback_days"`
}

// EnrichmentConfig holds web enrichment configuration
type EnrichmentConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Database defaults
	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "neo4j")

	// Cache defaults
	viper.SetDefault("cache.driver", "memory")
	viper.SetDefault("cache.path", "./data/snapshots")

	// Archive defaults
	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("archive.path", "./data/archive.duckdb")

	// Sync defaults
	viper.SetDefault("sync.max_items", 50)
	viper.SetDefault("sync.lookback_days", 90)

	// Enrichment defaults
	viper.SetDefault("enrichment.enabled", false)
	viper.SetDefault("enrichment.model", "gpt-4o-mini")
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Enrichment API key
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Enrichment.APIKey = apiKey
	}

	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}
}
