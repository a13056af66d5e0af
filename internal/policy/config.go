package policy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the yaml schema. Durations are strings in Go duration
// syntax ("30m", "168h").
type fileConfig struct {
	CapacityBytes        *int64   `yaml:"capacity_bytes"`
	MaxMessages          *int     `yaml:"max_messages"`
	MaxContextMessages   *int     `yaml:"max_context_messages"`
	ContextWindow        *int     `yaml:"context_window"`
	MaxAge               *string  `yaml:"max_age"`
	CleanupInterval      *string  `yaml:"cleanup_interval"`
	CompressionThreshold *int     `yaml:"compression_threshold"`
	PressureFraction     *float64 `yaml:"pressure_fraction"`
	EmergencyFraction    *float64 `yaml:"emergency_fraction"`
	EmergencyLimit       *int     `yaml:"emergency_limit"`
	StreamThrottle       *string  `yaml:"stream_throttle"`
}

// Load returns the default configuration overlaid with any values set in the
// yaml file at path. A missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("policy: read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("policy: parse config: %w", err)
	}

	if fc.CapacityBytes != nil {
		cfg.CapacityBytes = *fc.CapacityBytes
	}
	if fc.MaxMessages != nil {
		cfg.MaxMessages = *fc.MaxMessages
	}
	if fc.MaxContextMessages != nil {
		cfg.MaxContextMessages = *fc.MaxContextMessages
	}
	if fc.ContextWindow != nil {
		cfg.ContextWindow = *fc.ContextWindow
	}
	if fc.CompressionThreshold != nil {
		cfg.CompressionThreshold = *fc.CompressionThreshold
	}
	if fc.PressureFraction != nil {
		cfg.PressureFraction = *fc.PressureFraction
	}
	if fc.EmergencyFraction != nil {
		cfg.EmergencyFraction = *fc.EmergencyFraction
	}
	if fc.EmergencyLimit != nil {
		cfg.EmergencyLimit = *fc.EmergencyLimit
	}
	if fc.MaxAge != nil {
		if cfg.MaxAge, err = parseDuration("max_age", *fc.MaxAge); err != nil {
			return cfg, err
		}
	}
	if fc.CleanupInterval != nil {
		if cfg.CleanupInterval, err = parseDuration("cleanup_interval", *fc.CleanupInterval); err != nil {
			return cfg, err
		}
	}
	if fc.StreamThrottle != nil {
		if cfg.StreamThrottle, err = parseDuration("stream_throttle", *fc.StreamThrottle); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("policy: %s: %w", field, err)
	}
	return d, nil
}

// Validate rejects configurations that break the cleanup invariants.
func (c Config) Validate() error {
	if c.CapacityBytes <= 0 {
		return fmt.Errorf("policy: capacity_bytes must be positive")
	}
	if c.EmergencyLimit >= c.MaxMessages {
		return fmt.Errorf("policy: emergency_limit (%d) must be less than max_messages (%d)",
			c.EmergencyLimit, c.MaxMessages)
	}
	if c.EmergencyFraction <= 0 || c.EmergencyFraction > 1 {
		return fmt.Errorf("policy: emergency_fraction must be in (0, 1]")
	}
	if c.PressureFraction <= 0 || c.PressureFraction > c.EmergencyFraction {
		return fmt.Errorf("policy: pressure_fraction must be in (0, emergency_fraction]")
	}
	return nil
}
