// Package history persists prediction records in SQLite and serves the
// request history queries.
package history

import (
	"database/sql"
	"fmt"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"
)

// ConnectionConfig holds configuration for SQLite connections.
type ConnectionConfig struct {
	// Path is the database file path.
	Path string
	// BusyTimeout is how long to wait for locks (milliseconds).
	BusyTimeout int
	// MaxOpenConns limits concurrent connections.
	MaxOpenConns int
	// MaxIdleConns limits idle connections in the pool.
	MaxIdleConns int
	// ConnMaxLifetime limits how long a connection can be reused (0 = no limit).
	ConnMaxLifetime time.Duration
}

// DefaultConnectionConfig returns defaults tuned for SQLite in WAL mode:
// concurrent readers, a single writer.
func DefaultConnectionConfig(path string) ConnectionConfig {
	return ConnectionConfig{
		Path:            path,
		BusyTimeout:     5000,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 0,
	}
}

// NewSQLiteConnection opens a SQLite database with WAL mode enabled.
//
// WAL (Write-Ahead Logging) mode enables concurrent readers with a single
// writer and better crash recovery.
func NewSQLiteConnection(config ConnectionConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Pragmas apply per connection, so set them right after opening.
	pragmas := []struct {
		name  string
		query string
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL"},
		{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout)},
		{"foreign_keys", "PRAGMA foreign_keys=ON"},
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p.query); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s pragma: %w", p.name, err)
		}
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		db.Close()
		return nil, fmt.Errorf("WAL mode not enabled, got: %s", journalMode)
	}

	return db, nil
}

// NewSQLiteConnectionWithDefaults opens a connection using default settings.
func NewSQLiteConnectionWithDefaults(path string) (*sql.DB, error) {
	return NewSQLiteConnection(DefaultConnectionConfig(path))
}
