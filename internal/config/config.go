// Package config defines service configuration and its loading from
// defaults, an optional YAML file and the environment.
package config

import (
	"context"
	"fmt"
	"time"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Storage selects the backend: sqlite or memory.
	Storage string `koanf:"storage"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// SpinDurationMS is how long a spin stays in the Spinning state.
	SpinDurationMS int `koanf:"spin_duration_ms"`

	// SpinMinTurns and SpinMaxTurns bound the extra full turns per spin.
	SpinMinTurns int `koanf:"spin_min_turns"`
	SpinMaxTurns int `koanf:"spin_max_turns"`

	// RetryAttempts, RetryBaseDelayMS and RetryMaxDelayMS set the default
	// policy for background writes.
	RetryAttempts    int `koanf:"retry_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// MaxUploadBytes caps CSV and wheel file uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New returns a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		Storage:           StorageSQLite,
		DBPath:            "jamwheel.db",
		SpinDurationMS:    4000,
		SpinMinTurns:      5,
		SpinMaxTurns:      8,
		RetryAttempts:     5,
		RetryBaseDelayMS:  1000,
		RetryMaxDelayMS:   30000,
		MaxUploadBytes:    5 << 20,
		ShutdownTimeoutMS: 10000,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Storage != StorageSQLite && c.Storage != StorageMemory:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalidConfig, c.Storage)
	case c.Storage == StorageSQLite && c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.SpinDurationMS <= 0:
		return fmt.Errorf("%w: spin_duration_ms must be positive", ErrInvalidConfig)
	case c.SpinMinTurns < 1 || c.SpinMinTurns > c.SpinMaxTurns:
		return fmt.Errorf("%w: spin turns must satisfy 1 <= min <= max", ErrInvalidConfig)
	case c.RetryAttempts <= 0:
		return fmt.Errorf("%w: retry_attempts must be positive", ErrInvalidConfig)
	case c.RetryBaseDelayMS <= 0 || c.RetryBaseDelayMS > c.RetryMaxDelayMS:
		return fmt.Errorf("%w: retry delays must satisfy 0 < base <= max", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

// SpinDuration returns SpinDurationMS as a Duration.
func (c *Config) SpinDuration() time.Duration {
	return time.Duration(c.SpinDurationMS) * time.Millisecond
}

// RetryBaseDelay returns RetryBaseDelayMS as a Duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns RetryMaxDelayMS as a Duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
