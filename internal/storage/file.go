package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDriver stores one file per key under a directory. Key names are
// hex-encoded on disk so arbitrary key strings stay filesystem-safe; the
// usage accounting still charges the logical key length, matching the other
// drivers.
type FileDriver struct {
	dir      string
	capacity int64
}

// NewFileDriver creates a file-backed driver rooted at dir, creating the
// directory if needed. capacity <= 0 means unbounded.
func NewFileDriver(dir string, capacity int64) (*FileDriver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &FileDriver{dir: dir, capacity: capacity}, nil
}

const fileExt = ".kv"

func (d *FileDriver) path(key string) string {
	return filepath.Join(d.dir, hex.EncodeToString([]byte(key))+fileExt)
}

// Read returns the value for key.
func (d *FileDriver) Read(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return data, true, nil
}

// Write stores value under key, enforcing the capacity budget against the
// summed size of all pairs after the write.
func (d *FileDriver) Write(key string, value []byte) error {
	if d.capacity > 0 {
		u, err := d.Usage()
		if err != nil {
			return err
		}
		total := u.TotalBytes + pairSize(key, value)
		if old, ok, _ := d.Read(key); ok {
			total -= pairSize(key, old)
		}
		if total > d.capacity {
			return ErrCapacityExceeded
		}
	}
	if err := os.WriteFile(d.path(key), value, 0o644); err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (d *FileDriver) Remove(key string) error {
	err := os.Remove(d.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %q: %w", key, err)
	}
	return nil
}

// Keys lists every key currently present.
func (d *FileDriver) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list keys: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			// Foreign file in the directory; not ours to report.
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

// Usage computes the current usage snapshot.
func (d *FileDriver) Usage() (Usage, error) {
	keys, err := d.Keys()
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	for _, k := range keys {
		info, err := os.Stat(d.path(k))
		if err != nil {
			continue
		}
		u.TotalBytes += int64(len(k)) + info.Size()
		u.ItemCount++
	}
	return u, nil
}
