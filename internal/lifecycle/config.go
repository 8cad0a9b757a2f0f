package lifecycle

import (
	"os"
	"strconv"
)

// Config controls lifecycle business rules.
type Config struct {
	// MaxLentFutureDays bounds how far in the future a desired loan end date
	// may lie. Default 730.
	MaxLentFutureDays int
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		MaxLentFutureDays: 730,
	}
}

// ConfigFromEnv loads the configuration from environment variables.
// DLCDB_LENT_MAX_FUTURE_DAYS
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DLCDB_LENT_MAX_FUTURE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxLentFutureDays = n
		}
	}

	return cfg
}
