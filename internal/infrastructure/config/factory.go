package config

import "time"

// FactoryConfig describes the agent network: what exists and how fast it runs
type FactoryConfig struct {
	// Seed for every agent's random source; 0 picks one at start-up
	Seed uint64 `mapstructure:"seed"`

	// Part kinds, in catalog order
	Catalog []string `mapstructure:"catalog" validate:"required,min=1,unique,dive,required"`

	// Storage pools
	Inventories []InventoryConfig `mapstructure:"inventories" validate:"required,min=1,dive"`

	// Production lines, in round-robin order
	Lines []LineConfig `mapstructure:"lines" validate:"required,min=1,dive"`

	Orders  OrdersConfig  `mapstructure:"orders"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Restock RestockConfig `mapstructure:"restock"`
}

// InventoryConfig describes one storage pool
type InventoryConfig struct {
	Name string `mapstructure:"name" validate:"required"`

	// Units of every catalog kind at start-up (default 4)
	InitialStock *int `mapstructure:"initial_stock" validate:"omitempty,min=0"`
}

// LineConfig describes one production line and its fixed worker pool
type LineConfig struct {
	Name      string   `mapstructure:"name" validate:"required"`
	Inventory string   `mapstructure:"inventory" validate:"required"`
	Workers   []string `mapstructure:"workers" validate:"required,min=1,dive,required"`
}

// OrdersConfig controls order generation and dispatch
type OrdersConfig struct {
	// Time between generated orders; 0 disables generation
	GenerateInterval time.Duration `mapstructure:"generate_interval" validate:"min=0"`

	// Time between dispatch attempts; 0 disables the periodic attempt
	AssignInterval time.Duration `mapstructure:"assign_interval" validate:"min=0"`

	// Maximum pending orders before shedding
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=1"`

	// drop_newest or drop_oldest
	OverflowPolicy string `mapstructure:"overflow_policy" validate:"required,oneof=drop_newest drop_oldest"`
}

// WorkerConfig controls the job cycle shared by every worker
type WorkerConfig struct {
	BuildDuration   time.Duration `mapstructure:"build_duration" validate:"min=0"`
	InstallDuration time.Duration `mapstructure:"install_duration" validate:"min=0"`
	PartsPerJob     int           `mapstructure:"parts_per_job" validate:"min=0"`

	// How long a worker waits for its inventory; 0 waits forever
	PartsTimeout time.Duration `mapstructure:"parts_timeout" validate:"min=0"`

	// queue or reject
	BusyPolicy string `mapstructure:"busy_policy" validate:"required,oneof=queue reject"`

	// Jobs a busy worker holds under the queue policy before rejecting; 0 is unbounded
	MaxBacklog int `mapstructure:"max_backlog" validate:"min=0"`
}

// RestockConfig controls inventory replenishment
type RestockConfig struct {
	MinDelay  time.Duration `mapstructure:"min_delay" validate:"min=0"`
	MaxDelay  time.Duration `mapstructure:"max_delay" validate:"min=0"`
	Increment int           `mapstructure:"increment" validate:"min=0"`

	// Keep at most one pending restock per inventory (default true)
	Coalesce *bool `mapstructure:"coalesce"`
}

// CoalesceEnabled reports the effective coalescing setting
func (r RestockConfig) CoalesceEnabled() bool {
	return r.Coalesce == nil || *r.Coalesce
}

// StockFor returns the effective initial stock of an inventory
func (i InventoryConfig) StockFor() int {
	if i.InitialStock == nil {
		return DefaultInitialStock
	}
	return *i.InitialStock
}
