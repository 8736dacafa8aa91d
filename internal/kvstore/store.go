// Package kvstore persists small named records in a local SQLite database.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key         TEXT PRIMARY KEY,
	value       BLOB NOT NULL,
	updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// busyTimeoutMS bounds how long a write waits on a locked database file.
const busyTimeoutMS = 3000

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Store is a key-value table backed by SQLite. Safe for concurrent use,
// including Close racing in-flight calls.
type Store struct {
	// mu is held shared by every operation and exclusively by Close.
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// acquire read-locks the store and returns its database, or ErrClosed.
// The caller must call s.mu.RUnlock when err is nil.
func (s *Store) acquire() (*sql.DB, error) {
	if s == nil {
		return nil, ErrClosed
	}
	s.mu.RLock()
	if s.db == nil {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	return s.db, nil
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("kvstore: path required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o700); err != nil {
		return nil, fmt.Errorf("kvstore: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", trimmed, err)
	}
	// A single connection serializes writers and keeps pragmas effective.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS)); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: schema: %w", err)
	}
	slog.Debug("[DEBUG-STORE] opened", "path", trimmed)
	return &Store{db: db, path: trimmed}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Get returns the value stored under key. found is false when no record
// exists.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.acquire()
	if err != nil {
		return nil, false, err
	}
	defer s.mu.RUnlock()
	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put replaces the value stored under key in a single statement.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	db, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.mu.RUnlock()
	if value == nil {
		value = []byte{}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("kvstore: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	db, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.mu.RUnlock()
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return nil
}

// Close waits for in-flight calls and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
