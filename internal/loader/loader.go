package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

const (
	DefaultBatchSize = 500
	MaxBatchSize     = 1000
)

// Config names the tables a Loader writes to.
type Config struct {
	Master    string
	Staging   string
	BatchSize int
}

// LoadResult summarizes one stage-and-merge pass.
type LoadResult struct {
	Staged    int
	Failed    int
	Upserted  int64
	RowErrors []warehouse.RowError
}

// NoChanges reports whether the load had nothing to write.
func (r *LoadResult) NoChanges() bool {
	return r.Staged == 0 && r.Failed == 0
}

// Loader stages rows and merges them into the master table.
type Loader struct {
	wh      *warehouse.Warehouse
	evolver *schema.Evolver
	cfg     Config
	logger  *zap.Logger
}

// New creates a loader. BatchSize is clamped to 1..MaxBatchSize; zero selects DefaultBatchSize.
func New(wh *warehouse.Warehouse, evolver *schema.Evolver, cfg Config, logger *zap.Logger) *Loader {
	switch {
	case cfg.BatchSize == 0:
		cfg.BatchSize = DefaultBatchSize
	case cfg.BatchSize < 1:
		cfg.BatchSize = 1
	case cfg.BatchSize > MaxBatchSize:
		cfg.BatchSize = MaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{wh: wh, evolver: evolver, cfg: cfg, logger: logger}
}

// Load writes rows to staging, merges staging into master in one statement and
// clears staging. Rows the engine rejects are reported, not fatal. The master
// table must already hold every column in specs.
func (l *Loader) Load(ctx context.Context, rows []models.Row, specs []models.ColumnSpec) (*LoadResult, error) {
	result := &LoadResult{}
	if len(rows) == 0 {
		return result, nil
	}

	if _, err := l.evolver.Ensure(ctx, l.cfg.Staging, specs); err != nil {
		return nil, fmt.Errorf("prepare staging: %w", err)
	}
	if err := l.wh.Truncate(ctx, l.cfg.Staging); err != nil {
		return nil, fmt.Errorf("prepare staging: %w", err)
	}
	defer func() {
		// fresh context: staging must be cleared even when ctx was cancelled
		if err := l.wh.Truncate(context.WithoutCancel(ctx), l.cfg.Staging); err != nil {
			l.logger.Warn("failed to clear staging table", zap.String("table", l.cfg.Staging), zap.Error(err))
		}
	}()

	columns := models.ColumnNames(specs)
	rows = Dedupe(rows)

	for start := 0; start < len(rows); start += l.cfg.BatchSize {
		end := start + l.cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}

		res := l.wh.InsertRows(ctx, l.cfg.Staging, columns, rows[start:end])
		result.Staged += res.Inserted

		switch res.Outcome {
		case warehouse.Fatal:
			return nil, fmt.Errorf("stage rows %d-%d: %w", start, end, res.Err)
		case warehouse.Partial:
			for _, re := range res.RowErrors {
				l.logger.Warn("row rejected by warehouse",
					zap.String("id", re.ID),
					zap.String("reason", re.Reason))
			}
			result.Failed += len(res.RowErrors)
			result.RowErrors = append(result.RowErrors, res.RowErrors...)
		}
	}

	l.logger.Info("staged rows",
		zap.String("table", l.cfg.Staging),
		zap.Int("staged", result.Staged),
		zap.Int("failed", result.Failed))

	if result.Staged == 0 {
		return result, nil
	}

	n, err := l.wh.Merge(ctx, l.cfg.Master, l.cfg.Staging, columns)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	result.Upserted = n

	l.logger.Info("merged staging into master",
		zap.String("master", l.cfg.Master),
		zap.Int64("affected", n))
	return result, nil
}

// Dedupe keeps the last row per id, in first-appearance order. Rows without an
// id are kept as-is so the engine can reject them individually.
func Dedupe(rows []models.Row) []models.Row {
	index := make(map[string]int, len(rows))
	out := make([]models.Row, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			out = append(out, r)
			continue
		}
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
