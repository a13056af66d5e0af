package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDriver stores pairs in a single kv table inside an embedded SQLite
// database. It is the durable single-file backend for long-lived histories.
type SQLiteDriver struct {
	db       *sql.DB
	capacity int64
}

// NewSQLiteDriver opens (creating if needed) the database at path.
// capacity <= 0 means unbounded.
func NewSQLiteDriver(path string, capacity int64) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init schema: %w", err)
	}
	return &SQLiteDriver{db: db, capacity: capacity}, nil
}

// Close releases the underlying database handle.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

// Read returns the value for key.
func (d *SQLiteDriver) Read(key string) ([]byte, bool, error) {
	var value []byte
	err := d.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: read %q: %w", key, err)
	}
	return value, true, nil
}

// Write upserts value under key, enforcing the capacity budget.
func (d *SQLiteDriver) Write(key string, value []byte) error {
	if d.capacity > 0 {
		var others int64
		err := d.db.QueryRow(
			`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?`,
			key,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("storage: usage: %w", err)
		}
		if others+pairSize(key, value) > d.capacity {
			return ErrCapacityExceeded
		}
	}
	_, err := d.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storage: write %q: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (d *SQLiteDriver) Remove(key string) error {
	if _, err := d.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: remove %q: %w", key, err)
	}
	return nil
}

// Keys lists every key currently present.
func (d *SQLiteDriver) Keys() ([]string, error) {
	rows, err := d.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("storage: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Usage computes the current usage snapshot.
func (d *SQLiteDriver) Usage() (Usage, error) {
	var u Usage
	err := d.db.QueryRow(
		`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0), COUNT(*) FROM kv`,
	).Scan(&u.TotalBytes, &u.ItemCount)
	if err != nil {
		return Usage{}, fmt.Errorf("storage: usage: %w", err)
	}
	return u, nil
}
