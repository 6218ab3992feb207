// Package db persists transfer history, deletion records, scheduled jobs and
// remembered session settings in SQLite.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// DB wraps the SQLite connection pool
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, errors.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{conn}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}
