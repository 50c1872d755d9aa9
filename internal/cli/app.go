package cli

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/config"
	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/loader"
	"github.com/mkoziy/crmsync/internal/logging"
	"github.com/mkoziy/crmsync/internal/metrics"
	"github.com/mkoziy/crmsync/internal/migrations"
	"github.com/mkoziy/crmsync/internal/ratelimit"
	"github.com/mkoziy/crmsync/internal/reconcile"
	"github.com/mkoziy/crmsync/internal/repositories"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/sources/hubspot"
	"github.com/mkoziy/crmsync/internal/syncer"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

// rateLimitSource is the key looked up in the rate-limit file.
const rateLimitSource = "hubspot"

// app is the wired object graph for one command invocation.
type app struct {
	cfg     *config.Config
	db      *bun.DB
	runner  *syncer.Runner
	runs    *repositories.RunRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// setup loads configuration and wires every component. Configuration problems
// are reported before anything touches the warehouse.
func setup(ctx context.Context, opts *RootOptions, job string) (*app, error) {
	logger, err := logging.New(opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to build logger", err)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "invalid configuration", err)
	}

	limiterCfg := ratelimit.DefaultConfig()
	if cfg.CRM.RateLimitsFile != "" {
		sources, err := ratelimit.LoadFile(cfg.CRM.RateLimitsFile)
		if err != nil {
			return nil, WrapExitError(ExitConfigError, "invalid rate limits", err)
		}
		if limiterCfg, err = sources.Get(rateLimitSource); err != nil {
			logger.Warn("using default rate limits", zap.Error(err))
		}
	}

	logger.Info("opening warehouse",
		zap.String("driver", string(cfg.Driver())),
		zap.String("project", logging.SanitizeConnectionString(cfg.Warehouse.Project)),
		zap.String("dataset", cfg.Warehouse.Dataset))

	db, err := database.NewDB(ctx, cfg.DatabaseOptions())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open warehouse", errors.New(logging.SanitizeError(err)))
	}
	if err := migrations.RunMigrations(ctx, db, cfg.Driver(), logger); err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitFailure, "failed to migrate sync state", err)
	}

	client := hubspot.NewClient(ratelimit.NewLimiter(limiterCfg), cfg.CRM.BaseURL, cfg.CRM.AccessToken, logger)
	fetcher := hubspot.NewFetcher(client, cfg.CRM.Entity, cfg.Sync.MaxPropertiesPerRequest, logger)

	wh := warehouse.New(db, cfg.Driver(), logger)
	evolver := schema.NewEvolver(wh, logger)
	ld := loader.New(wh, evolver, loader.Config{
		Master:    cfg.Warehouse.MasterTable,
		Staging:   cfg.Warehouse.StagingTable,
		BatchSize: cfg.Sync.LoadBatchSize,
	}, logger)
	rec := reconcile.New(fetcher, wh, evolver, cfg.Warehouse.MasterTable, cfg.Strategy(), logger)

	runs := repositories.NewRunRepository(db)
	m := metrics.New(job, cfg.CRM.Entity)

	runner := syncer.New(cfg.CRM.Entity, cfg.Warehouse.MasterTable, syncer.Deps{
		Source:     fetcher,
		Evolver:    evolver,
		Loader:     ld,
		Reconciler: rec,
		State:      repositories.NewSyncStateRepository(db, cfg.Sync.DefaultLookback, logger),
		Runs:       runs,
		Metrics:    m,
		Logger:     logger,
	})

	return &app{cfg: cfg, db: db, runner: runner, runs: runs, metrics: m, logger: logger}, nil
}

// close pushes metrics and releases the warehouse connection.
func (a *app) close(ctx context.Context) {
	a.metrics.Push(context.WithoutCancel(ctx), a.cfg.Metrics.PushgatewayURL, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close warehouse", zap.Error(err))
	}
	_ = a.logger.Sync()
}
