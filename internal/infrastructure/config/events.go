package config

import "time"

// EventsConfig holds completion event publishing configuration
type EventsConfig struct {
	// AMQP broker URL; empty disables publishing
	AMQPURL string `mapstructure:"amqp_url" validate:"omitempty,url"`

	// Fanout exchange receiving the events
	Exchange string `mapstructure:"exchange" validate:"required"`

	// Per-message publish timeout including the broker confirm
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"min=0"`

	// Mark messages persistent
	Persistent bool `mapstructure:"persistent"`
}

// Enabled returns true when a broker is configured
func (e EventsConfig) Enabled() bool {
	return e.AMQPURL != ""
}
