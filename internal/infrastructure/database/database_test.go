package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iotstream/notify-core/internal/infrastructure/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAndHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}
	if db.Path() == "" {
		t.Error("path not recorded")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("%d migrations still pending", len(pending))
	}

	// The audit table exists and is writable.
	_, err = db.ExecContext(ctx,
		"INSERT INTO connection_events (id, tenant, event, created_at) VALUES (?, ?, ?, ?)",
		"evt-1", "t1", "connected", "2026-08-30T12:00:00Z",
	)
	if err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
}
