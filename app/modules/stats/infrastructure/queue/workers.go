package statsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// AchievementSweeper runs one checkpointed achievement pass. Declared here so
// the queue does not import the achievement module directly.
type AchievementSweeper interface {
	Sweep(ctx context.Context) error
}

// BackfillWorker executes queued backfill runs.
type BackfillWorker struct {
	river.WorkerDefaults[BackfillJobArgs]
	logger  *slog.Logger
	service statsservice.Service
}

// NewBackfillWorker creates a new BackfillWorker.
func NewBackfillWorker(logger *slog.Logger, service statsservice.Service) *BackfillWorker {
	return &BackfillWorker{logger: logger, service: service}
}

// Timeout allows long windows; the run itself commits batch by batch, so a
// timeout mid-run loses at most the current batch.
func (w *BackfillWorker) Timeout(*river.Job[BackfillJobArgs]) time.Duration {
	return 30 * time.Minute
}

func (w *BackfillWorker) Work(ctx context.Context, job *river.Job[BackfillJobArgs]) error {
	req := statsservice.BackfillRequest{
		From:   job.Args.From,
		To:     job.Args.To,
		Server: sharedtypes.ServerGuid(job.Args.Server),
		RunKey: job.Args.RunKey,
	}

	result, err := w.service.RunBackfill(ctx, req)
	if err != nil {
		// Returned for retry; committed batches are skipped on the rerun.
		return fmt.Errorf("backfill run %s: %w", req.Key(), err)
	}
	if result.Failure != nil {
		// A rejected request will not improve on retry.
		w.logger.WarnContext(ctx, "backfill request rejected",
			attr.String("run_key", req.Key()),
			attr.Any("failure", result.Failure),
		)
		return nil
	}

	if summary, ok := result.Success.(*statsservice.BackfillSummary); ok {
		w.logger.InfoContext(ctx, "backfill job finished",
			attr.String("run_key", summary.RunKey),
			attr.Int("players", summary.Players),
			attr.Int("batches", summary.Batches),
			attr.Int("skipped_batches", summary.SkippedBatches),
		)
	}
	return nil
}

// AchievementSweepWorker executes the periodic achievement pass.
type AchievementSweepWorker struct {
	river.WorkerDefaults[AchievementSweepArgs]
	logger  *slog.Logger
	sweeper AchievementSweeper
}

// NewAchievementSweepWorker creates a new AchievementSweepWorker.
func NewAchievementSweepWorker(logger *slog.Logger, sweeper AchievementSweeper) *AchievementSweepWorker {
	return &AchievementSweepWorker{logger: logger, sweeper: sweeper}
}

func (w *AchievementSweepWorker) Timeout(*river.Job[AchievementSweepArgs]) time.Duration {
	return 5 * time.Minute
}

func (w *AchievementSweepWorker) Work(ctx context.Context, job *river.Job[AchievementSweepArgs]) error {
	if err := w.sweeper.Sweep(ctx); err != nil {
		return fmt.Errorf("achievement sweep: %w", err)
	}
	return nil
}
