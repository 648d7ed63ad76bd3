package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Database is the handle to the engine's audit store.
type Database struct {
	DB *sql.DB
}

// New opens the audit store at path, creating parent directories as needed.
// The pool is capped to one connection: the executor, position monitor,
// deploy coordinator, and audit writer all share it, and the busy timeout
// absorbs their contention.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("db: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	handle.SetMaxOpenConns(1)

	return &Database{DB: handle}, nil
}

// Close releases the handle. Safe to call on a nil Database.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
