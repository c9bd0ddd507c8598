package config

import "time"

// DaemonConfig holds the long-running `run` command configuration
type DaemonConfig struct {
	// gRPC health server address (host:port); empty disables it
	Address string `mapstructure:"address"`

	// PID file location; guards against two runs sharing one host
	PIDFile string `mapstructure:"pid_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`

	// Interval of the progress line printed while running; 0 disables it
	StatusInterval time.Duration `mapstructure:"status_interval" validate:"min=0"`
}
