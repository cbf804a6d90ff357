// Package sqlite provides a local-file storage.KVStore for the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tradetrainer/internal/observability"
	"tradetrainer/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// KVStore implements storage.KVStore on a single SQLite file.
type KVStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*KVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Close closes the database.
func (s *KVStore) Close() error {
	return s.db.Close()
}

// Get returns the value under key. Returns ErrNotFound if absent.
func (s *KVStore) Get(ctx context.Context, key string) (value string, err error) {
	defer observe("get", time.Now(), &err)

	err = s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (s *KVStore) Set(ctx context.Context, key, value string) (err error) {
	if key == "" {
		return storage.ErrInvalidInput
	}
	defer observe("set", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) (err error) {
	defer observe("delete", time.Now(), &err)

	if _, err = s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func observe(op string, start time.Time, err *error) {
	var failed error
	if *err != nil && !errors.Is(*err, storage.ErrNotFound) {
		failed = *err
	}
	observability.RecordDBQuery("sqlite", op, time.Since(start).Seconds(), failed)
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)
