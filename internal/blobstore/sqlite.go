package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultSQLiteKey is the row holding the value in the kv table.
const DefaultSQLiteKey = "state"

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	selectValueSQL = `SELECT value FROM kv WHERE key = ?`
	upsertValueSQL = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// SQLiteStore keeps the value in a single row of a SQLite key/value table.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// Compile-time check to ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and prepares the kv
// table. The caller must Close the store.
func NewSQLiteStore(ctx context.Context, path, key string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if key == "" {
		key = DefaultSQLiteKey
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection keeps writers serialized inside the process
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

// Read returns the value stored under the store's key.
func (s *SQLiteStore) Read(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, selectValueSQL, s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite key %s: %w", s.key, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("empty sqlite value for key %s: %w", s.key, ErrNotFound)
	}
	return value, nil
}

// Write upserts the value under the store's key.
func (s *SQLiteStore) Write(ctx context.Context, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertValueSQL, s.key, value); err != nil {
		return fmt.Errorf("writing sqlite key %s: %w", s.key, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
