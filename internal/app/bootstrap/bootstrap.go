package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	consensusengine "quiltqc/contexts/quilt-review/consensus-engine"
	postgresadapter "quiltqc/contexts/quilt-review/consensus-engine/adapters/postgres"
	"quiltqc/contexts/quilt-review/consensus-engine/application/commands"
	workerapp "quiltqc/contexts/quilt-review/consensus-engine/application/workers"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"
	contractsv1 "quiltqc/contracts/gen/events/v1"
	"quiltqc/internal/platform/config"
	"quiltqc/internal/platform/db"
	"quiltqc/internal/platform/httpserver"
	"quiltqc/internal/platform/messaging"
	"quiltqc/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres          *db.Postgres
	bus               *messaging.Bus
	outboxRelay       workerapp.OutboxRelay
	recomputer        workerapp.Recomputer
	relayEnabled      bool
	pollInterval      time.Duration
	recomputeInterval time.Duration
	logger            *slog.Logger
}

type RecomputeApp struct {
	postgres   *db.Postgres
	recomputer workerapp.Recomputer
}

// RecomputeOptions overrides the configured sweep settings for one run.
type RecomputeOptions struct {
	Workers     int
	MaxAttempts int
	DryRun      bool
}

func BuildAPI(cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	pg, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	module, err := buildModule(cfg, pg, nil, reg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	server := httpserver.New(module, httpserver.Options{
		Addr:           normalizeAddr(cfg.HTTPPort),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        reg,
		Logger:         logger,
	})
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker(cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	pg, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	bus := messaging.NewBus(cfg.EventBrokers, logger)
	module, err := buildModule(cfg, pg, bus, nil, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	recomputeInterval := cfg.RecomputeInterval
	if recomputeInterval <= 0 {
		recomputeInterval = 5 * time.Minute
	}
	relay := module.OutboxRelay
	relay.BatchSize = 100
	return &WorkerApp{
		postgres:          pg,
		bus:               bus,
		outboxRelay:       relay,
		recomputer:        module.Recomputer,
		relayEnabled:      cfg.EnableOutboxRelay,
		pollInterval:      cfg.WorkerPollInterval,
		recomputeInterval: recomputeInterval,
		logger:            logger,
	}, nil
}

func BuildRecompute(cfg config.Config, opts RecomputeOptions, logger *slog.Logger) (*RecomputeApp, error) {
	if opts.Workers > 0 {
		cfg.RecomputeWorkers = opts.Workers
	}
	if opts.MaxAttempts > 0 {
		cfg.RecomputeMaxAttempts = opts.MaxAttempts
	}
	pg, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	module, err := buildModule(cfg, pg, nil, nil, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	recomputer := module.Recomputer
	recomputer.DryRun = opts.DryRun
	return &RecomputeApp{postgres: pg, recomputer: recomputer}, nil
}

// Migrate creates the schema and seeds block rows 1..BLOCK_COUNT. Re-running
// it is safe; it reports how many blocks were newly created.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) (int, error) {
	pg, err := connect(cfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = pg.Close() }()

	if err := pg.Migrate(ctx, postgresadapter.Models()...); err != nil {
		return 0, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	created, err := repo.SeedBlocks(ctx, cfg.BlockCount)
	if err != nil {
		return created, err
	}
	logger.Info("schema migrated",
		"event", "bootstrap_migrate_completed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"block_count", cfg.BlockCount,
		"blocks_created", created,
	)
	return created, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.bus.Subscribe(ctx, commands.EventRecropCompleted, "quiltqc-recrop-audit-cg", w.logRecropJob)

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"recompute_interval", w.recomputeInterval.String(),
		"outbox_relay_enabled", w.relayEnabled,
	)

	group, ctx := errgroup.WithContext(ctx)
	if w.relayEnabled {
		group.Go(func() error {
			return every(ctx, w.pollInterval, func(ctx context.Context) error {
				_, err := w.outboxRelay.RunOnce(ctx)
				return err
			})
		})
	}
	group.Go(func() error {
		return every(ctx, w.recomputeInterval, func(ctx context.Context) error {
			if _, err := w.recomputer.RunOnce(ctx); err != nil {
				w.logger.Warn("recompute sweep finished with failures",
					"event", "bootstrap_recompute_failures",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
			return nil
		})
	})
	return group.Wait()
}

func (w *WorkerApp) logRecropJob(_ context.Context, event ports.EventEnvelope) error {
	var job contractsv1.BlockRecropCompleted
	if err := event.DecodeData(contractsv1.EventTypeBlockRecropCompleted, &job); err != nil {
		return err
	}
	w.logger.Info("recrop job queued for image worker",
		"event", "bootstrap_recrop_job_queued",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"block_id", job.BlockID,
		"event_id", event.EventID,
		"x", job.X,
		"y", job.Y,
		"width", job.Width,
		"height", job.Height,
	)
	return nil
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func (a *RecomputeApp) Run(ctx context.Context) (workerapp.RecomputeSummary, error) {
	return a.recomputer.RunOnce(ctx)
}

func (a *RecomputeApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func connect(cfg config.Config) (*db.Postgres, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	return db.Connect(cfg.PostgresDSN)
}

func buildModule(
	cfg config.Config,
	pg *db.Postgres,
	publisher ports.EventPublisher,
	reg *metrics.Registry,
	logger *slog.Logger,
) (consensusengine.Module, error) {
	repo := postgresadapter.NewRepository(pg.DB, logger)
	deps := consensusengine.Dependencies{
		Votes:                repo,
		Blocks:               repo,
		Queries:              repo,
		Outbox:               repo,
		Publisher:            publisher,
		Clock:                postgresadapter.SystemClock{},
		IDGen:                postgresadapter.UUIDGenerator{},
		ClosedBlockCacheSize: cfg.ClosedBlockCacheSize,
		RecomputeWorkers:     cfg.RecomputeWorkers,
		RecomputeAttempts:    cfg.RecomputeMaxAttempts,
		RecomputeBackoff:     cfg.RecomputeBackoff,
		Logger:               logger,
	}
	if cfg.ConsensusBlockLock {
		deps.Locker = repo
	}
	if reg != nil {
		deps.Metrics = reg
	}
	return consensusengine.NewModule(deps)
}

// every runs fn immediately and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
