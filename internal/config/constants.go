package config

import "time"

const (
	// Version stamps every persisted snapshot; migration fills older files.
	Version = 2

	// DefaultCommandTimeouts provide consistent durations for external command execution.
	DefaultCommandTimeout        = 5 * time.Second
	DefaultGatewayCommandTimeout = 30 * time.Second

	// DefaultPollInterval is the watchdog sampling cadence.
	DefaultPollInterval = 8 * time.Second

	// DefaultChannelBuffer standardises buffered channel sizes across workers.
	DefaultChannelBuffer = 32
)
