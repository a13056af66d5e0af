package storage

import "sync"

// MemDriver is an in-memory driver with a configurable capacity ceiling.
// It backs ephemeral sessions and lets tests trigger ErrCapacityExceeded
// deterministically.
type MemDriver struct {
	mu       sync.Mutex
	capacity int64
	items    map[string][]byte
}

// NewMemDriver creates an in-memory driver. capacity <= 0 means unbounded.
func NewMemDriver(capacity int64) *MemDriver {
	return &MemDriver{
		capacity: capacity,
		items:    make(map[string][]byte),
	}
}

// Read returns the value for key.
func (d *MemDriver) Read(key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Write stores value under key, enforcing the capacity ceiling.
func (d *MemDriver) Write(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capacity > 0 {
		total := pairSize(key, value)
		for k, v := range d.items {
			if k == key {
				continue
			}
			total += pairSize(k, v)
		}
		if total > d.capacity {
			return ErrCapacityExceeded
		}
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	d.items[key] = stored
	return nil
}

// Remove deletes key.
func (d *MemDriver) Remove(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, key)
	return nil
}

// Keys lists every key currently present.
func (d *MemDriver) Keys() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// Usage computes the current usage snapshot.
func (d *MemDriver) Usage() (Usage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var u Usage
	for k, v := range d.items {
		u.TotalBytes += pairSize(k, v)
		u.ItemCount++
	}
	return u, nil
}
