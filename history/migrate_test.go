package history

import (
	"path/filepath"
	"testing"
)

func TestMigrateUpFromPath_AppliesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")

	if err := MigrateUpFromPath(dbPath, testMigrationsPath); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	db, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='predictions'`,
	).Scan(&name)
	if err != nil {
		t.Fatalf("predictions table missing: %v", err)
	}
}

func TestMigrateUpFromPath_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")

	if err := MigrateUpFromPath(dbPath, testMigrationsPath); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	// Second run has no pending migrations and must not fail.
	if err := MigrateUpFromPath(dbPath, testMigrationsPath); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrationVersion_Unmigrated(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fresh.db")

	db, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	version, dirty, err := MigrationVersion(db, testMigrationsPath)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("expected version 0 clean, got %d dirty=%v", version, dirty)
	}
}

func TestMigrateDown_RollsBack(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "down.db")

	if err := MigrateUpFromPath(dbPath, testMigrationsPath); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	db, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := MigrateDown(db, testMigrationsPath, -1); err != nil {
		t.Fatalf("migrate down: %v", err)
	}

	check, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer check.Close()

	var name string
	err = check.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='predictions'`,
	).Scan(&name)
	if err == nil {
		t.Error("predictions table must be dropped after a full rollback")
	}
}
