// Package config provides configuration management for hprofkit.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Parser    ParserConfig    `mapstructure:"parser"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ParserConfig holds core-parser behaviour that upper layers may tune.
type ParserConfig struct {
	// MmapThreshold is loaded from configuration but read by nothing in this
	// module: the parser memory-maps every uncompressed on-disk dump
	// regardless of its size, and always inflates compressed inputs into
	// memory first.
	MmapThreshold int64 `mapstructure:"mmap_threshold"`

	// DefaultIndexLevel names an Index Builder level (§4.6). It is loaded
	// from configuration but read by nothing in this module: the CLI and the
	// archiver build index levels on demand.
	DefaultIndexLevel int `mapstructure:"default_index_level"`
}

// DatabaseConfig holds the digest archiver's database connection
// configuration (internal/archive/store.go).
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres, or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration for fetching remote
// dumps (internal/archive/fetch.go).
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// TelemetryConfig holds OpenTelemetry exporter/sampler configuration,
// mirroring pkg/telemetry.Config's environment-variable surface as
// mapstructure-tagged fields so it can also be set from a config file.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"`
	Insecure    bool   `mapstructure:"insecure"`
	Sampler     string `mapstructure:"sampler"`
	SamplerArg  string `mapstructure:"sampler_arg"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hprofkit")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw bytes (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("parser.mmap_threshold", 8<<20) // 8 MiB
	v.SetDefault("parser.default_index_level", 1)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.database", "hprofkit.db")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("telemetry.service_name", "hprofctl")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sampler", "always_on")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if (c.Database.Type == "postgres" || c.Database.Type == "postgresql" || c.Database.Type == "mysql") && c.Database.Host == "" {
		return fmt.Errorf("database host is required for type %q", c.Database.Type)
	}
	return nil
}

// EnsureLocalStorageDir creates the local storage directory if it doesn't
// exist; a no-op when storage is not local.
func (c *Config) EnsureLocalStorageDir() error {
	if c.Storage.Type != "local" || c.Storage.LocalPath == "" {
		return nil
	}
	return os.MkdirAll(c.Storage.LocalPath, 0755)
}

// SQLiteDir returns the directory portion of a sqlite database file path,
// used to ensure the file's parent directory exists before opening it.
func (c *Config) SQLiteDir() string {
	return filepath.Dir(c.Database.Database)
}
