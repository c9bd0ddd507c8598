package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultInitialStock is the start-up count of every part kind
const DefaultInitialStock = 4

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	setFactoryDefaults(&cfg.Factory)

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Sampling.Every == 0 {
		cfg.Logging.Sampling.Every = time.Second
	}
	if cfg.Logging.Sampling.Burst == 0 {
		cfg.Logging.Sampling.Burst = 5
	}

	// Database defaults (in-memory ledger)
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = ":memory:"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "carfactory"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "carfactory"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 10
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 2
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Metrics defaults
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "localhost"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.PollInterval == 0 {
		cfg.Metrics.PollInterval = 5 * time.Second
	}

	// Daemon defaults
	if cfg.Daemon.Address == "" {
		cfg.Daemon.Address = "localhost:50061"
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/carfactory.pid"
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = 10 * time.Second
	}

	// Events defaults
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "carfactory.events"
	}
	if cfg.Events.PublishTimeout == 0 {
		cfg.Events.PublishTimeout = 5 * time.Second
	}
}

// setFactoryDefaults fills in the two-line, four-worker plant
func setFactoryDefaults(f *FactoryConfig) {
	if len(f.Catalog) == 0 {
		f.Catalog = []string{"ENGINE", "WHEEL", "SEAT", "DOOR", "MIRROR"}
	}
	if len(f.Inventories) == 0 {
		f.Inventories = []InventoryConfig{
			{Name: "storage1"},
			{Name: "storage2"},
		}
	}
	if len(f.Lines) == 0 {
		f.Lines = []LineConfig{
			{Name: "Line-1", Inventory: "storage1", Workers: []string{"Rahul", "Shivam"}},
			{Name: "Line-2", Inventory: "storage2", Workers: []string{"Sujal", "Sahil"}},
		}
	}

	// Orders
	if f.Orders.QueueCapacity == 0 {
		f.Orders.QueueCapacity = 1000
	}
	if f.Orders.OverflowPolicy == "" {
		f.Orders.OverflowPolicy = "drop_newest"
	}

	// Worker
	if f.Worker.BusyPolicy == "" {
		f.Worker.BusyPolicy = "queue"
	}

	// Restock
	if f.Restock.Coalesce == nil {
		coalesce := true
		f.Restock.Coalesce = &coalesce
	}
}

// zeroableDefaults are the factory keys where an explicit 0 is a valid
// setting. They go through viper before Unmarshal so only absent keys get them.
var zeroableDefaults = map[string]interface{}{
	"factory.orders.generate_interval": 15 * time.Second,
	"factory.orders.assign_interval":   10 * time.Second,
	"factory.worker.build_duration":    5 * time.Second,
	"factory.worker.install_duration":  3 * time.Second,
	"factory.worker.parts_per_job":     2,
	"factory.worker.max_backlog":       8,
	"factory.restock.min_delay":        10 * time.Second,
	"factory.restock.max_delay":        15 * time.Second,
	"factory.restock.increment":        3,
}

// SetViperDefaults registers the defaults that SetDefaults cannot tell apart
// from an explicit zero
func SetViperDefaults(v *viper.Viper) {
	for key, value := range zeroableDefaults {
		v.SetDefault(key, value)
	}
}
