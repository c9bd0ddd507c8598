package config

import "time"

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`

	// Log format: json, text
	Format string `mapstructure:"format" validate:"required,oneof=json text"`

	// Output destination: stdout, stderr, file
	Output string `mapstructure:"output" validate:"required,oneof=stdout stderr file"`

	// File path (required if output is "file")
	FilePath string `mapstructure:"file_path" validate:"required_if=Output file"`

	// Sampling of repeated identical messages
	Sampling SamplingConfig `mapstructure:"sampling"`
}

// SamplingConfig limits how often the same message may be written
type SamplingConfig struct {
	// Enable sampling
	Enabled bool `mapstructure:"enabled"`

	// Sustained rate per message key
	Every time.Duration `mapstructure:"every" validate:"min=0"`

	// Burst allowed before sampling kicks in
	Burst int `mapstructure:"burst" validate:"min=0"`
}
