// Package storage defines the key-value persistence abstraction for the
// easychat conversation log and its capacity-limited backends.
package storage

import "errors"

// ErrCapacityExceeded is returned by Write when the backend would grow past
// its configured capacity budget. Drivers never retry; recovery policy lives
// in the cleanup engine.
var ErrCapacityExceeded = errors.New("storage: capacity exceeded")

// KeyPrefix namespaces every key this application owns inside a shared store.
const KeyPrefix = "easychat_"

// HistoryKey is the primary key holding the serialized conversation log.
const HistoryKey = KeyPrefix + "chat_history"

// Usage is a point-in-time snapshot of what the application occupies in the
// store. It is derived on demand and never cached across cleanup passes.
type Usage struct {
	TotalBytes int64
	ItemCount  int
}

// Percent returns usage as a percentage of the given capacity budget.
func (u Usage) Percent(capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(u.TotalBytes) / float64(capacity) * 100
}

// Driver is a thin adapter over a synchronous, string-keyed, byte-capacity
// constrained store. All implementations account usage as the sum of key and
// value byte lengths across every pair the application owns.
type Driver interface {
	// Read returns the value for key, reporting absence via ok=false.
	Read(key string) (value []byte, ok bool, err error)

	// Write stores value under key, or fails with ErrCapacityExceeded when
	// the store would exceed its budget.
	Write(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Keys lists every key currently present.
	Keys() ([]string, error)

	// Usage computes the current usage snapshot.
	Usage() (Usage, error)
}

// pairSize is the usage accounting rule shared by all drivers.
func pairSize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
