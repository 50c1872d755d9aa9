package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/apperrors"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

// Strategy selects how deleted source objects are detected.
type Strategy string

const (
	// StrategyAntiJoin deletes every master row whose id is not live at the source.
	StrategyAntiJoin Strategy = "anti_join"
	// StrategyArchived deletes exactly the ids the source lists as archived.
	StrategyArchived Strategy = "archived"
)

// ParseStrategy validates a strategy name. Empty selects StrategyAntiJoin.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAntiJoin, nil
	case StrategyAntiJoin, StrategyArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown cleanup strategy %q", s)
	}
}

const deleteBatchSize = 1000

// IDSource lists object ids at the source.
type IDSource interface {
	FetchLiveIDs(ctx context.Context) ([]string, error)
	FetchArchivedIDs(ctx context.Context) ([]string, error)
}

// Result reports one reconciliation sweep.
type Result struct {
	Strategy Strategy
	// Candidates is the number of ids fetched from the source.
	Candidates int
	// Deleted is the engine-reported number of master rows removed.
	Deleted int64
	// Skipped is set when the sweep refused to delete anything.
	Skipped bool
}

// Reconciler removes master rows for objects deleted at the source.
type Reconciler struct {
	source   IDSource
	wh       *warehouse.Warehouse
	evolver  *schema.Evolver
	master   string
	strategy Strategy
	logger   *zap.Logger
}

// New creates a reconciler for the master table.
func New(source IDSource, wh *warehouse.Warehouse, evolver *schema.Evolver, master string, strategy Strategy, logger *zap.Logger) *Reconciler {
	if strategy == "" {
		strategy = StrategyAntiJoin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		source:   source,
		wh:       wh,
		evolver:  evolver,
		master:   master,
		strategy: strategy,
		logger:   logger,
	}
}

// LiveTable is the run-scoped table holding live ids for the anti-join.
func LiveTable(master string) string {
	return master + "_live_ids"
}

// Reconcile runs one deletion sweep with the configured strategy.
func (r *Reconciler) Reconcile(ctx context.Context) (*Result, error) {
	result := &Result{Strategy: r.strategy}

	exists, err := r.wh.TableExists(ctx, r.master)
	if err != nil {
		return nil, err
	}
	if !exists {
		r.logger.Info("master table does not exist, nothing to reconcile", zap.String("table", r.master))
		return result, nil
	}

	switch r.strategy {
	case StrategyArchived:
		err = r.deleteArchived(ctx, result)
	default:
		err = r.deleteMissing(ctx, result)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("reconciled deletions",
		zap.String("strategy", string(r.strategy)),
		zap.String("table", r.master),
		zap.Int("candidates", result.Candidates),
		zap.Int64("deleted", result.Deleted),
		zap.Bool("skipped", result.Skipped))
	return result, nil
}

func (r *Reconciler) deleteMissing(ctx context.Context, result *Result) error {
	ids, err := r.source.FetchLiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list live ids: %w", err)
	}
	result.Candidates = len(ids)

	if len(ids) == 0 {
		r.logger.Warn("refusing anti-join delete", zap.String("table", r.master), zap.Error(apperrors.ErrEmptyLiveSet))
		result.Skipped = true
		return nil
	}

	live := LiveTable(r.master)
	if _, err := r.evolver.Ensure(ctx, live, []models.ColumnSpec{models.IDColumnSpec()}); err != nil {
		return fmt.Errorf("prepare live id table: %w", err)
	}
	if err := r.wh.Truncate(ctx, live); err != nil {
		return err
	}
	defer func() {
		if err := r.wh.Truncate(context.WithoutCancel(ctx), live); err != nil {
			r.logger.Warn("failed to clear live id table", zap.String("table", live), zap.Error(err))
		}
	}()

	rows := make([]models.Row, len(ids))
	for i, id := range ids {
		rows[i] = models.Row{ID: id}
	}
	for start := 0; start < len(rows); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(rows))
		res := r.wh.InsertRows(ctx, live, nil, rows[start:end])
		// an incomplete live set would delete live rows
		if res.Outcome == warehouse.Fatal {
			return fmt.Errorf("load live ids: %w", res.Err)
		}
		if res.Outcome == warehouse.Partial {
			return fmt.Errorf("load live ids: %d of %d ids rejected, first: %s",
				len(res.RowErrors), end-start, res.RowErrors[0].Reason)
		}
	}

	n, err := r.wh.DeleteMissing(ctx, r.master, live)
	if err != nil {
		return err
	}
	result.Deleted = n
	return nil
}

func (r *Reconciler) deleteArchived(ctx context.Context, result *Result) error {
	ids, err := r.source.FetchArchivedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list archived ids: %w", err)
	}
	result.Candidates = len(ids)

	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		n, err := r.wh.DeleteIDs(ctx, r.master, ids[start:end])
		if err != nil {
			return err
		}
		result.Deleted += n
	}
	return nil
}
