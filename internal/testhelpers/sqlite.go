package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uptrace/bun"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/migrations"
)

// NewSQLiteDB opens a file-backed SQLite warehouse in a per-test temp dir with
// the tracker tables migrated. It is closed when the test ends.
func NewSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.NewDB(ctx, database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "warehouse.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite warehouse: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.RunMigrations(ctx, db, database.DriverSQLite, nil); err != nil {
		t.Fatalf("migrate sqlite warehouse: %v", err)
	}
	return db
}
