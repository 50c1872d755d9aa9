package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/mkoziy/crmsync/internal/models"
)

// RunRepository records sync and cleanup run history.
type RunRepository struct {
	db bun.IDB
}

// NewRunRepository creates a run repository.
func NewRunRepository(db bun.IDB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a running entry and returns it.
func (r *RunRepository) Start(ctx context.Context, entity string, kind models.RunKind) (*models.SyncRun, error) {
	run := &models.SyncRun{
		RunID:     uuid.NewString(),
		Entity:    entity,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		Status:    models.RunRunning,
	}
	if _, err := r.db.NewInsert().Model(run).Exec(ctx); err != nil {
		return run, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Finish updates the stored run with its final counters and status.
func (r *RunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	_, err := r.db.NewUpdate().
		Model(run).
		Column("finished_at", "status", "rows_fetched", "rows_upserted", "rows_failed",
			"rows_deleted", "columns", "watermark", "error_log").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	return nil
}

// Recent returns the latest runs for entity, newest first.
func (r *RunRepository) Recent(ctx context.Context, entity string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := r.db.NewSelect().
		Model(&runs).
		Where("entity = ?", entity).
		OrderExpr("started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
