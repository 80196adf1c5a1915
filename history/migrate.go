package history

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file" // File source driver
)

// MigrateUp applies all pending up migrations.
// Returns nil when there are no pending migrations.
//
// The migrator takes ownership of the database connection and closes it
// when complete. Do not use the connection after calling this function.
func MigrateUp(db *sql.DB, migrationsPath string) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// MigrateUpFromPath applies all pending migrations using a database path.
// This variant manages its own connection lifecycle and is the recommended
// entry point.
//
// Example:
//
//	err := MigrateUpFromPath("/var/lib/refinery/history.db", "file://history/migrations")
func MigrateUpFromPath(dbPath, migrationsPath string) error {
	db, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	return MigrateUp(db, migrationsPath)
}

// MigrateDown rolls back migrations by the given number of steps.
// Pass -1 to roll back all migrations.
//
// The migrator takes ownership of the database connection and closes it
// when complete.
func MigrateDown(db *sql.DB, migrationsPath string, steps int) error {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	var migrateErr error
	if steps == -1 {
		migrateErr = m.Down()
	} else {
		migrateErr = m.Steps(-steps)
	}

	if migrateErr != nil {
		if errors.Is(migrateErr, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to roll back migrations: %w", migrateErr)
	}

	return nil
}

// MigrationVersion returns the current migration version and dirty state.
// Returns version=0 and dirty=false when no migrations have been applied.
// A dirty state means a migration failed partway through and manual
// intervention may be required.
//
// The migrator takes ownership of the database connection and closes it
// when complete.
func MigrationVersion(db *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := newMigrator(db, migrationsPath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}

// newMigrator creates a migrate.Migrate instance over the connection.
// migrator.Close() also closes the database connection.
func newMigrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	if migrationsPath == "" {
		return nil, errors.New("migrations path is required")
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{
		DatabaseName: "main",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationsPath,
		"sqlite",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}
