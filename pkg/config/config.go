// Package config holds runtime configuration for the scheduler, derived
// from defaults and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AutoInstanceID asks the scheduler to generate its instance id.
const AutoInstanceID = "AUTO"

// Config is the scheduler runtime configuration.
type Config struct {
	// InstanceName names the scheduler in logs and published events.
	InstanceName string
	// InstanceID identifies this scheduler instance; AUTO generates one.
	InstanceID string
	// ThreadPoolSize is the number of concurrent job workers.
	ThreadPoolSize int
	// BatchTimeWindow widens each acquire batch to triggers firing within
	// this much of the first trigger's fire time.
	BatchTimeWindow time.Duration
	// MaxBatchSize caps how many triggers one acquire may return.
	MaxBatchSize int
	// MisfireThreshold is how late a fire time may be before the trigger is
	// treated as misfired.
	MisfireThreshold time.Duration
	// IdleWait is how far ahead the main loop looks, and how long it sleeps
	// when nothing is due.
	IdleWait time.Duration
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		InstanceName:     "chronos",
		InstanceID:       AutoInstanceID,
		ThreadPoolSize:   10,
		BatchTimeWindow:  0,
		MaxBatchSize:     1,
		MisfireThreshold: 60 * time.Second,
		IdleWait:         30 * time.Second,
	}
}

// FromEnv loads the configuration from CHRONOS_* environment variables,
// falling back to defaults for unset values.
func FromEnv() (Config, error) {
	cfg := Default()
	if v := os.Getenv("CHRONOS_INSTANCE_NAME"); v != "" {
		cfg.InstanceName = v
	}
	if v := os.Getenv("CHRONOS_INSTANCE_ID"); v != "" {
		cfg.InstanceID = v
	}
	var err error
	if cfg.ThreadPoolSize, err = intEnv("CHRONOS_THREAD_POOL_SIZE", cfg.ThreadPoolSize); err != nil {
		return cfg, err
	}
	if cfg.MaxBatchSize, err = intEnv("CHRONOS_MAX_BATCH_SIZE", cfg.MaxBatchSize); err != nil {
		return cfg, err
	}
	if cfg.BatchTimeWindow, err = durationEnv("CHRONOS_BATCH_TIME_WINDOW", cfg.BatchTimeWindow); err != nil {
		return cfg, err
	}
	if cfg.MisfireThreshold, err = durationEnv("CHRONOS_MISFIRE_THRESHOLD", cfg.MisfireThreshold); err != nil {
		return cfg, err
	}
	if cfg.IdleWait, err = durationEnv("CHRONOS_IDLE_WAIT", cfg.IdleWait); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.InstanceName == "" {
		return ConfigError{Field: "InstanceName", Reason: "must not be empty"}
	}
	if c.ThreadPoolSize < 1 {
		return ConfigError{Field: "ThreadPoolSize", Reason: "must be at least 1"}
	}
	if c.MaxBatchSize < 1 {
		return ConfigError{Field: "MaxBatchSize", Reason: "must be at least 1"}
	}
	if c.BatchTimeWindow < 0 {
		return ConfigError{Field: "BatchTimeWindow", Reason: "must not be negative"}
	}
	if c.MisfireThreshold < time.Millisecond {
		return ConfigError{Field: "MisfireThreshold", Reason: "must be at least 1ms"}
	}
	if c.IdleWait < time.Millisecond {
		return ConfigError{Field: "IdleWait", Reason: "must be at least 1ms"}
	}
	return nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, ConfigError{Field: name, Reason: fmt.Sprintf("is not an integer: %q", v)}
	}
	return n, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, ConfigError{Field: name, Reason: fmt.Sprintf("is not a duration: %q", v)}
	}
	return d, nil
}
