// Package database opens the SQLite file shared by the audit store and the
// event log.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	appDir = "crackomatic"
	dbFile = "crackomatic.db"
)

var pathOverride string

// SetPath overrides the default database path. The --db-path flag and
// tests use it.
func SetPath(p string) { pathOverride = p }

// ResetPath clears the path override.
func ResetPath() { pathOverride = "" }

// DefaultPath returns the database path: the override if set, otherwise
// crackomatic/crackomatic.db below the user config directory.
func DefaultPath() (string, error) {
	if pathOverride != "" {
		return pathOverride, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("database: unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, dbFile), nil
}

// LockPath returns the file whose lock marks the cracking host as busy. It
// lives next to the database so that every process sharing the database
// sees it.
func LockPath() (string, error) {
	path, err := DefaultPath()
	if err != nil {
		return "", err
	}
	return path + ".lock", nil
}

// Open opens a SQLite database at the provided path. The daemon and CLI
// commands may hold the file at the same time, so writers wait for the
// lock instead of failing immediately.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("database: failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("database: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: failed to open database: %w", err)
	}
	return db, nil
}
