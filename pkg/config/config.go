// Package config provides configuration management for the training core.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the training core.
type Config struct {
	Operator  OperatorConfig  `mapstructure:"operator"`
	Merger    MergerConfig    `mapstructure:"merger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// OperatorConfig holds operator/worker orchestration configuration.
type OperatorConfig struct {
	WorkerCount        int  `mapstructure:"worker_count"`
	UseSessions        bool `mapstructure:"use_sessions"`
	ThreadPriority     int  `mapstructure:"thread_priority"`
	BackgroundPoolSize int  `mapstructure:"background_pool_size"`
}

// MergerConfig holds network-merger configuration.
type MergerConfig struct {
	// Pattern is the resolver glob pattern selecting which registry keys
	// are merged across worker replicas, e.g. "layers.*.*".
	Pattern string `mapstructure:"pattern"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure    bool   `mapstructure:"insecure"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
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
		v.AddConfigPath("/etc/trainkit")
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

// LoadFromReader loads configuration from raw content (useful for testing).
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
	v.SetDefault("operator.worker_count", 4)
	v.SetDefault("operator.use_sessions", false)
	v.SetDefault("operator.thread_priority", 0)
	v.SetDefault("operator.background_pool_size", 4)

	v.SetDefault("merger.pattern", "layers.*.*")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "trainkit")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Operator.WorkerCount < 1 {
		return fmt.Errorf("operator.worker_count must be at least 1")
	}
	if c.Operator.BackgroundPoolSize < 1 {
		return fmt.Errorf("operator.background_pool_size must be at least 1")
	}
	if c.Merger.Pattern == "" {
		return fmt.Errorf("merger.pattern must not be empty")
	}
	return nil
}
