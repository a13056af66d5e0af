// Package policy holds the capacity configuration and the pure decision
// logic that maps a storage usage snapshot to an ordered cleanup plan.
package policy

import (
	"time"

	"github.com/easychat-dev/easychat/internal/storage"
)

// Action is one cleanup step. The plan order is fixed: cheap, reversible
// actions first, destructive trim last, because later actions assume earlier
// ones already shrank the data set.
type Action int

const (
	ExpireOld Action = iota
	CompressLarge
	TrimExcess
	CleanOrphans
	Defragment
)

func (a Action) String() string {
	switch a {
	case ExpireOld:
		return "expire_old"
	case CompressLarge:
		return "compress_large"
	case TrimExcess:
		return "trim_excess"
	case CleanOrphans:
		return "clean_orphans"
	case Defragment:
		return "defragment"
	default:
		return "unknown"
	}
}

// Config carries the fixed capacity budget and cleanup thresholds.
type Config struct {
	// CapacityBytes is the maximum the persistence layer may consume.
	CapacityBytes int64 `yaml:"capacity_bytes"`

	// MaxMessages bounds the log after a normal cleanup pass.
	MaxMessages int `yaml:"max_messages"`

	// MaxContextMessages bounds the in-memory log on every append.
	MaxContextMessages int `yaml:"max_context_messages"`

	// ContextWindow is how many recent turns go into an outbound request.
	ContextWindow int `yaml:"context_window"`

	// MaxAge evicts messages older than this regardless of count.
	MaxAge time.Duration `yaml:"max_age"`

	// CleanupInterval is the periodic cleanup cadence.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// CompressionThreshold is the message size in bytes above which text is
	// whitespace-compressed.
	CompressionThreshold int `yaml:"compression_threshold"`

	// PressureFraction of capacity at which an append triggers a normal
	// cleanup pass.
	PressureFraction float64 `yaml:"pressure_fraction"`

	// EmergencyFraction of capacity at which cleanup escalates to the
	// emergency mode. Shared by the post-pass check and the append-path
	// monitor.
	EmergencyFraction float64 `yaml:"emergency_fraction"`

	// EmergencyLimit is the message count kept by an emergency trim.
	// Strictly less than MaxMessages.
	EmergencyLimit int `yaml:"emergency_limit"`

	// StreamThrottle is the minimum interval between streamed UI updates.
	StreamThrottle time.Duration `yaml:"stream_throttle"`
}

// Default returns the fixed default configuration.
func Default() Config {
	return Config{
		CapacityBytes:        5 * 1024 * 1024,
		MaxMessages:          100,
		MaxContextMessages:   20,
		ContextWindow:        10,
		MaxAge:               7 * 24 * time.Hour,
		CleanupInterval:      30 * time.Minute,
		CompressionThreshold: 1024,
		PressureFraction:     0.8,
		EmergencyFraction:    0.9,
		EmergencyLimit:       20,
		StreamThrottle:       16 * time.Millisecond,
	}
}

// Plan returns the cleanup actions due for the given usage snapshot, always
// in the fixed order.
func (c Config) Plan(storage.Usage) []Action {
	return []Action{ExpireOld, CompressLarge, TrimExcess, CleanOrphans, Defragment}
}

// IsEmergency reports whether usage is past the emergency fraction of the
// capacity budget.
func (c Config) IsEmergency(u storage.Usage) bool {
	return float64(u.TotalBytes) > c.EmergencyFraction*float64(c.CapacityBytes)
}

// UnderPressure reports whether usage is past the pressure fraction, at
// which point an append should trigger a normal cleanup pass.
func (c Config) UnderPressure(u storage.Usage) bool {
	return float64(u.TotalBytes) > c.PressureFraction*float64(c.CapacityBytes)
}
