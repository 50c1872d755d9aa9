package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/loader"
	"github.com/mkoziy/crmsync/internal/logging"
	"github.com/mkoziy/crmsync/internal/metrics"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/reconcile"
	"github.com/mkoziy/crmsync/internal/repositories"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/transform"
)

// Source is the CRM side of a sync.
type Source interface {
	FetchProperties(ctx context.Context) ([]models.PropertyDefinition, error)
	FetchModifiedSince(ctx context.Context, props []string, since time.Time) ([]models.Record, error)
}

// Deps wires a Runner. Reconciler and Metrics are optional.
type Deps struct {
	Source     Source
	Evolver    *schema.Evolver
	Loader     *loader.Loader
	Reconciler *reconcile.Reconciler
	State      *repositories.SyncStateRepository
	Runs       *repositories.RunRepository
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Summary reports a sync run.
type Summary struct {
	RunID        string
	Status       models.RunStatus
	Since        time.Time
	Watermark    time.Time
	Properties   int
	Fetched      int
	Staged       int
	Failed       int
	Upserted     int64
	Columns      int
	AddedColumns int
	Duration     time.Duration
}

// CleanupSummary reports a reconciliation run.
type CleanupSummary struct {
	RunID      string
	Strategy   reconcile.Strategy
	Candidates int
	Deleted    int64
	Skipped    bool
	Duration   time.Duration
}

// Runner executes the sync and cleanup pipelines for one entity.
type Runner struct {
	entity string
	master string
	deps   Deps
	now    func() time.Time
	logger *zap.Logger
}

// New creates a runner for entity replicated into the master table.
func New(entity, master string, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		entity: entity,
		master: master,
		deps:   deps,
		now:    time.Now,
		logger: logger.With(zap.String("entity", entity)),
	}
}

// Run performs one incremental sync: catalogue, mapping, extraction since the
// stored watermark, transform, schema evolution, stage-and-merge, and finally
// the watermark save. The new watermark is captured before extraction and only
// persisted once the merge succeeded, so a failed run is redone next time.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := r.now()
	run := r.startRun(ctx, models.RunSync)
	sum := &Summary{RunID: run.RunID}

	err := r.sync(ctx, sum)
	sum.Duration = r.now().Sub(started)

	status := sum.Status
	if err != nil {
		status = models.RunFailed
		sum.Status = status
	}
	run.RowsFetched = sum.Fetched
	run.RowsUpserted = sum.Upserted
	run.RowsFailed = sum.Failed
	run.Columns = sum.Columns
	if !sum.Watermark.IsZero() && status != models.RunFailed {
		wm := sum.Watermark.Format(time.RFC3339Nano)
		run.Watermark = &wm
	}
	r.finishRun(ctx, run, status, err)
	r.deps.Metrics.Finish(sum.Duration, err == nil)

	if err != nil {
		r.logger.Error("sync failed", zap.String("run_id", run.RunID), logging.Error(err))
		return sum, err
	}

	r.logger.Info("sync finished",
		zap.String("run_id", run.RunID),
		zap.String("status", string(sum.Status)),
		zap.Int("fetched", sum.Fetched),
		zap.Int("failed", sum.Failed),
		zap.Int64("upserted", sum.Upserted),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

func (r *Runner) sync(ctx context.Context, sum *Summary) error {
	props, err := r.deps.Source.FetchProperties(ctx)
	if err != nil {
		return fmt.Errorf("fetch property catalogue: %w", err)
	}
	sum.Properties = len(props)

	specs := schema.MapColumns(props, r.logger)

	since, err := r.deps.State.GetLast(ctx, r.entity)
	if err != nil {
		return err
	}
	sum.Since = since

	watermark := r.now().UTC()

	records, err := r.deps.Source.FetchModifiedSince(ctx, sourceNames(specs), since)
	if err != nil {
		return fmt.Errorf("extract records: %w", err)
	}
	sum.Fetched = len(records)
	r.deps.Metrics.Fetched(len(records))

	rows := transform.Transform(records, specs)

	handle, err := r.deps.Evolver.Ensure(ctx, r.master, specs)
	if err != nil {
		return fmt.Errorf("evolve %s: %w", r.master, err)
	}
	sum.Columns = handle.Columns
	sum.AddedColumns = len(handle.Added)
	r.deps.Metrics.Columns(handle.Columns)

	if len(rows) == 0 {
		r.logger.Info("no records modified since watermark", zap.Time("since", since))
		sum.Status = models.RunNoChanges
		return nil
	}

	res, err := r.deps.Loader.Load(ctx, rows, specs)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	sum.Staged = res.Staged
	sum.Failed = res.Failed
	sum.Upserted = res.Upserted
	r.deps.Metrics.Failed(res.Failed)
	r.deps.Metrics.Upserted(res.Upserted)

	if err := r.deps.State.Save(ctx, r.entity, watermark); err != nil {
		return err
	}
	sum.Watermark = watermark
	sum.Status = models.RunSucceeded
	return nil
}

// Cleanup runs one deletion reconciliation sweep.
func (r *Runner) Cleanup(ctx context.Context) (*CleanupSummary, error) {
	if r.deps.Reconciler == nil {
		return nil, fmt.Errorf("cleanup: no reconciler configured")
	}

	started := r.now()
	run := r.startRun(ctx, models.RunCleanup)
	sum := &CleanupSummary{RunID: run.RunID}

	res, err := r.deps.Reconciler.Reconcile(ctx)
	sum.Duration = r.now().Sub(started)
	if res != nil {
		sum.Strategy = res.Strategy
		sum.Candidates = res.Candidates
		sum.Deleted = res.Deleted
		sum.Skipped = res.Skipped
	}

	status := models.RunSucceeded
	switch {
	case err != nil:
		status = models.RunFailed
	case sum.Deleted == 0:
		status = models.RunNoChanges
	}
	run.RowsDeleted = sum.Deleted
	r.finishRun(ctx, run, status, err)
	r.deps.Metrics.Deleted(sum.Deleted)
	r.deps.Metrics.Finish(sum.Duration, err == nil)

	if err != nil {
		r.logger.Error("cleanup failed", zap.String("run_id", run.RunID), logging.Error(err))
		return sum, fmt.Errorf("cleanup: %w", err)
	}
	return sum, nil
}

// startRun records run history. History is best effort and never fails a run.
func (r *Runner) startRun(ctx context.Context, kind models.RunKind) *models.SyncRun {
	if r.deps.Runs == nil {
		return &models.SyncRun{Entity: r.entity, Kind: kind, StartedAt: r.now().UTC(), Status: models.RunRunning}
	}
	run, err := r.deps.Runs.Start(ctx, r.entity, kind)
	if err != nil {
		r.logger.Warn("failed to record run start", logging.Error(err))
	}
	return run
}

func (r *Runner) finishRun(ctx context.Context, run *models.SyncRun, status models.RunStatus, runErr error) {
	run.Finish(status, sanitized(runErr))
	if r.deps.Runs == nil || run.RunID == "" {
		return
	}
	if err := r.deps.Runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to record run result", zap.String("run_id", run.RunID), logging.Error(err))
	}
}

// sourceNames lists the property names to request, in column order.
func sourceNames(specs []models.ColumnSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.Name == models.IDColumn {
			continue
		}
		names = append(names, s.Source)
	}
	return names
}

type sanitizedError struct{ msg string }

func (e sanitizedError) Error() string { return e.msg }

func sanitized(err error) error {
	if err == nil {
		return nil
	}
	return sanitizedError{msg: logging.SanitizeError(err)}
}
