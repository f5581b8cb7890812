package statsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/uptrace/bun"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
)

// statsJobQueue serializes backfill runs; a second concurrent run would only
// fight the first for the aggregate regions.
const statsJobQueue = "stats"

const defaultSweepInterval = 5 * time.Minute

// QueueService schedules durable stats jobs.
type QueueService interface {
	// EnqueueBackfill inserts a unique backfill job and returns its run key.
	EnqueueBackfill(ctx context.Context, req statsservice.BackfillRequest) (string, error)
	// HealthCheck verifies the queue service can reach its job store.
	HealthCheck(ctx context.Context) error
	// Start starts the queue service.
	Start(ctx context.Context) error
	// Stop stops the queue service and releases its pool.
	Stop(ctx context.Context) error
}

// Ensure Service implements QueueService
var _ QueueService = (*Service)(nil)

// Service handles durable job scheduling for the stats module using River.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	db      *bun.DB
	metrics statsmetrics.StatsMetrics
}

// NewService creates a River-backed queue service, runs River's own schema
// migrations, and registers the backfill and achievement sweep workers. The
// sweep repeats at sweepInterval and also fires once at startup to catch up
// after downtime.
func NewService(
	ctx context.Context,
	bunDB *bun.DB,
	logger *slog.Logger,
	dsn string,
	statsSvc statsservice.Service,
	sweeper AchievementSweeper,
	sweepInterval time.Duration,
	metrics statsmetrics.StatsMetrics,
) (*Service, error) {
	ctxLogger := logger.With(
		attr.String("component", "river_queue"),
	)
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	metrics.RecordOperationAttempt(ctx, "InitializeQueue")
	start := time.Now()
	defer func() {
		metrics.RecordOperationDuration(ctx, "InitializeQueue", time.Since(start))
	}()

	// River requires pgx, not database/sql.
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to run river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewBackfillWorker(ctxLogger, statsSvc))
	river.AddWorker(workers, NewAchievementSweepWorker(ctxLogger, sweeper))

	periodicJobs := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(sweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return AchievementSweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			statsJobQueue:      {MaxWorkers: 1},
		},
		Workers:      workers,
		PeriodicJobs: periodicJobs,
	})
	if err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "InitializeQueue")
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}

	metrics.RecordOperationSuccess(ctx, "InitializeQueue")
	ctxLogger.InfoContext(ctx, "stats queue service initialized",
		attr.Duration("sweep_interval", sweepInterval),
	)
	return &Service{
		client:  riverClient,
		pool:    pool,
		logger:  ctxLogger,
		db:      bunDB,
		metrics: metrics,
	}, nil
}

// Start starts the River client.
func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river client: %w", err)
	}
	s.logger.InfoContext(ctx, "stats queue service started")
	return nil
}

// Stop stops the River client and closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop river client: %w", err)
	}
	s.pool.Close()
	s.logger.InfoContext(ctx, "stats queue service stopped")
	return nil
}

// EnqueueBackfill inserts a backfill job keyed by its canonical run key.
// Duplicate submissions of the same window collapse onto the pending job.
func (s *Service) EnqueueBackfill(ctx context.Context, req statsservice.BackfillRequest) (string, error) {
	s.metrics.RecordOperationAttempt(ctx, "EnqueueBackfill")

	runKey := req.Key()
	job := BackfillJobArgs{
		From:   req.From.UTC(),
		To:     req.To.UTC(),
		Server: string(req.Server),
		RunKey: runKey,
	}

	result, err := s.client.Insert(ctx, job, &river.InsertOpts{
		Queue: statsJobQueue,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	})
	if err != nil {
		s.metrics.RecordOperationFailure(ctx, "EnqueueBackfill")
		return "", fmt.Errorf("failed to enqueue backfill: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "EnqueueBackfill")
	if result.UniqueSkippedAsDuplicate {
		s.logger.InfoContext(ctx, "backfill already enqueued",
			attr.String("run_key", runKey),
			attr.Int64("job_id", result.Job.ID),
		)
	} else {
		s.logger.InfoContext(ctx, "backfill enqueued",
			attr.String("run_key", runKey),
			attr.Int64("job_id", result.Job.ID),
		)
	}
	return runKey, nil
}

// HealthCheck verifies the job store answers queries.
func (s *Service) HealthCheck(ctx context.Context) error {
	var count int
	err := s.db.NewSelect().
		Table("river_job").
		ColumnExpr("COUNT(*)").
		Scan(ctx, &count)
	if err != nil {
		return fmt.Errorf("queue health check failed: %w", err)
	}
	return nil
}
