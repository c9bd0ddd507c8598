package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	Factory  FactoryConfig  `mapstructure:"factory"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Events   EventsConfig   `mapstructure:"events"`
}

// envKeys are the scalar keys that can be overridden from the environment
// even when no config file mentions them
var envKeys = []string{
	"factory.seed",
	"factory.orders.generate_interval",
	"factory.orders.assign_interval",
	"factory.orders.queue_capacity",
	"factory.orders.overflow_policy",
	"factory.worker.build_duration",
	"factory.worker.install_duration",
	"factory.worker.parts_per_job",
	"factory.worker.parts_timeout",
	"factory.worker.busy_policy",
	"factory.worker.max_backlog",
	"factory.restock.min_delay",
	"factory.restock.max_delay",
	"factory.restock.increment",
	"factory.restock.coalesce",
	"logging.level",
	"logging.format",
	"logging.output",
	"logging.file_path",
	"database.type",
	"database.url",
	"database.path",
	"metrics.enabled",
	"metrics.host",
	"metrics.port",
	"daemon.address",
	"daemon.pid_file",
	"events.amqp_url",
	"events.exchange",
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (factory.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	// Set config file details
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("factory")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/carfactory")
	}

	// Enable environment variable reading
	SetViperDefaults(v)

	v.SetEnvPrefix("CF") // CF_ prefix for CarFactory
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Read config file (optional - don't error if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we'll use env vars and defaults
	}

	// DATABASE_URL is honoured without the CF_ prefix
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
		if !v.IsSet("database.type") {
			v.Set("database.type", "postgres")
		}
	}

	// Create config struct and unmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	SetDefaults(&cfg)

	// Validate configuration
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault loads configuration or returns a default config on error
func LoadConfigOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns the configuration used when nothing is configured
func DefaultConfig() *Config {
	v := viper.New()
	SetViperDefaults(v)

	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	SetDefaults(cfg)
	return cfg
}
