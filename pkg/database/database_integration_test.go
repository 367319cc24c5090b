package database

import (
	"context"
	"embed"
	"os"
	"testing"
	"time"
)

//go:embed testdata/migrations
var testMigrations embed.FS

func getTestConfig() *Config {
	cfg := DefaultConfig()
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	cfg.Database = "minos_test"
	return cfg
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := getTestConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestConnect_Integration(t *testing.T) {
	db := setupTestDB(t)

	var result int
	if err := db.QueryRow("SELECT 1").Scan(&result); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result != 1 {
		t.Errorf("result = %d, want 1", result)
	}
}

func TestConnect_ConnectionPool_Integration(t *testing.T) {
	cfg := getTestConfig()
	cfg.MaxOpenConns = 5
	cfg.MaxIdleConns = 2
	cfg.ConnMaxLifetime = 1 * time.Minute
	cfg.ConnMaxIdleTime = 30 * time.Second

	db, err := Connect(context.Background(), cfg)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	defer db.Close()

	stats := db.Stats()
	if stats.MaxOpenConnections != 5 {
		t.Errorf("MaxOpenConnections = %d, want 5", stats.MaxOpenConnections)
	}
}

// Full migrator lifecycle: apply both migrations, re-apply as a no-op, then
// roll back one version at a time.
func TestMigrator_UpDown_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.ExecContext(ctx, "DROP TABLE IF EXISTS mig_schema_migrations")
	db.ExecContext(ctx, "DROP TABLE IF EXISTS mig_evals")

	migrator := NewMigrator(db, "mig")
	migrator.migrations = []Migration{
		{
			Version: 1,
			Name:    "create_evals",
			Up:      "CREATE TABLE mig_evals (id UUID PRIMARY KEY, name TEXT NOT NULL)",
			Down:    "DROP TABLE mig_evals",
		},
		{
			Version: 2,
			Name:    "add_difficulty",
			Up:      "ALTER TABLE mig_evals ADD COLUMN difficulty TEXT",
			Down:    "ALTER TABLE mig_evals DROP COLUMN difficulty",
		},
	}

	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	version, err := migrator.Version(ctx)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 2 {
		t.Errorf("Version() after Up = %d, want 2", version)
	}

	var tableExists bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'mig_evals'
		)
	`).Scan(&tableExists)
	if err != nil {
		t.Fatalf("check table exists error = %v", err)
	}
	if !tableExists {
		t.Error("mig_evals table should exist after migration")
	}

	// Second Up is a no-op
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("second Up() error = %v", err)
	}
	version, _ = migrator.Version(ctx)
	if version != 2 {
		t.Errorf("Version() after repeated Up = %d, want 2", version)
	}

	if err := migrator.Down(ctx); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	version, _ = migrator.Version(ctx)
	if version != 1 {
		t.Errorf("Version() after Down = %d, want 1", version)
	}

	if err := migrator.Down(ctx); err != nil {
		t.Fatalf("second Down() error = %v", err)
	}
	version, _ = migrator.Version(ctx)
	if version != 0 {
		t.Errorf("Version() after second Down = %d, want 0", version)
	}

	db.ExecContext(ctx, "DROP TABLE IF EXISTS mig_schema_migrations")
	db.ExecContext(ctx, "DROP TABLE IF EXISTS mig_evals")
}

func TestMigrator_Down_NoMigrations_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.ExecContext(ctx, "DROP TABLE IF EXISTS empty_schema_migrations")

	migrator := NewMigrator(db, "empty")
	migrator.migrations = []Migration{}

	if err := migrator.Down(ctx); err != nil {
		t.Errorf("Down() with no migrations error = %v", err)
	}

	db.ExecContext(ctx, "DROP TABLE IF EXISTS empty_schema_migrations")
}

func TestMigrator_Up_FailedMigration_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.ExecContext(ctx, "DROP TABLE IF EXISTS fail_schema_migrations")

	migrator := NewMigrator(db, "fail")
	migrator.migrations = []Migration{
		{
			Version: 1,
			Name:    "bad_migration",
			Up:      "CREATE TABLE this is invalid SQL",
			Down:    "",
		},
	}

	if err := migrator.Up(ctx); err == nil {
		t.Error("expected error for invalid SQL")
	}

	// A failed migration must not be recorded
	version, _ := migrator.Version(ctx)
	if version != 0 {
		t.Errorf("Version() = %d, want 0 after failed migration", version)
	}

	db.ExecContext(ctx, "DROP TABLE IF EXISTS fail_schema_migrations")
}

func TestMigrator_Down_MigrationNotFound_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.ExecContext(ctx, "DROP TABLE IF EXISTS notfound_schema_migrations")

	// Recorded version with no matching migration in the slice
	migrator := NewMigrator(db, "notfound")
	migrator.migrations = []Migration{}
	db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS notfound_schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())")
	db.ExecContext(ctx, "INSERT INTO notfound_schema_migrations (version, name) VALUES (99, 'missing')")

	if err := migrator.Down(ctx); err == nil {
		t.Error("expected error when migration not found")
	}

	db.ExecContext(ctx, "DROP TABLE IF EXISTS notfound_schema_migrations")
}

// The embedded fixture migrations apply cleanly end to end.
func TestMigrator_EmbeddedMigrations_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.ExecContext(ctx, "DROP TABLE IF EXISTS load_schema_migrations")
	db.ExecContext(ctx, "DROP TABLE IF EXISTS test_table")

	migrator := NewMigrator(db, "load")
	if err := migrator.LoadMigrations(testMigrations, "testdata/migrations"); err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}

	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("Up() after LoadMigrations error = %v", err)
	}

	version, _ := migrator.Version(ctx)
	if version != 2 {
		t.Errorf("Version() = %d, want 2", version)
	}

	db.ExecContext(ctx, "DROP TABLE IF EXISTS load_schema_migrations")
	db.ExecContext(ctx, "DROP TABLE IF EXISTS test_table")
}
