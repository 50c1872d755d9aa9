package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/models"
)

// DefaultLookback is the first-run extraction window.
const DefaultLookback = 30 * 24 * time.Hour

// SyncStateRepository persists the per-entity watermark.
type SyncStateRepository struct {
	db       bun.IDB
	lookback time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSyncStateRepository creates a repository. lookback <= 0 selects DefaultLookback.
func NewSyncStateRepository(db bun.IDB, lookback time.Duration, logger *zap.Logger) *SyncStateRepository {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncStateRepository{db: db, lookback: lookback, now: time.Now, logger: logger}
}

// GetLast returns the stored watermark for entity. When none is stored, or the
// stored value cannot be parsed, it returns now minus the lookback window.
func (r *SyncStateRepository) GetLast(ctx context.Context, entity string) (time.Time, error) {
	state := new(models.SyncState)
	err := r.db.NewSelect().
		Model(state).
		Where("entity = ?", entity).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return r.defaultWindow(), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync state for %s: %w", entity, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, state.LastSyncTimestamp)
	if err != nil {
		r.logger.Warn("unparseable sync watermark, using default window",
			zap.String("entity", entity),
			zap.String("stored", state.LastSyncTimestamp),
			zap.Error(err))
		return r.defaultWindow(), nil
	}
	return ts.UTC(), nil
}

// Save stores ts as the watermark for entity in a single upsert statement.
func (r *SyncStateRepository) Save(ctx context.Context, entity string, ts time.Time) error {
	state := &models.SyncState{
		Entity:            entity,
		LastSyncTimestamp: ts.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         r.now().UTC(),
	}
	_, err := r.db.NewInsert().
		Model(state).
		On("CONFLICT (entity) DO UPDATE").
		Set("last_sync_timestamp = EXCLUDED.last_sync_timestamp").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save sync state for %s: %w", entity, err)
	}
	return nil
}

func (r *SyncStateRepository) defaultWindow() time.Time {
	return r.now().UTC().Add(-r.lookback)
}
