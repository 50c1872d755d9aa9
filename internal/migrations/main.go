package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/models"
)

var Migrations = migrate.NewMigrations()

var trackerModels = []interface{}{
	(*models.SyncState)(nil),
	(*models.SyncRun)(nil),
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_sync_runs_entity_started ON sync_runs(entity, started_at)",
}

func createTables(ctx context.Context, db bun.IDB) error {
	for _, model := range trackerModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func createIndexes(ctx context.Context, db bun.IDB) error {
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// RunMigrations creates the sync tracker tables. DuckDB cannot host the
// migration bookkeeping table, so there the tables are created directly.
func RunMigrations(ctx context.Context, db *bun.DB, driver database.Driver, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if driver == database.DriverDuckDB {
		if err := createTables(ctx, db); err != nil {
			return fmt.Errorf("create tracker tables: %w", err)
		}
		if err := createIndexes(ctx, db); err != nil {
			return fmt.Errorf("create tracker indexes: %w", err)
		}
		return nil
	}

	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if group.IsZero() {
		logger.Debug("no new migrations to run")
		return nil
	}

	logger.Info("migrated tracker schema", zap.String("group", group.String()))
	return nil
}
