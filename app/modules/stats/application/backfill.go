package statsservice

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	"github.com/frontline-stats/sitrep/internal/regionlock"
)

// BackfillRequest describes one reconciliation run over a historical window.
type BackfillRequest struct {
	From   time.Time
	To     time.Time
	Server sharedtypes.ServerGuid // empty means every server
	RunKey string                 // derived from the window when empty
}

// Key returns the run key, deriving one from the window and server filter
// when the request does not carry its own. Resubmitting the same window
// yields the same key, which is what lets a retry skip batches an earlier
// attempt already committed.
func (r BackfillRequest) Key() string {
	if r.RunKey != "" {
		return r.RunKey
	}
	scope := "all"
	if r.Server != "" {
		scope = string(r.Server)
	}
	return fmt.Sprintf("backfill:%s:%s:%s",
		r.From.UTC().Format("20060102T150405Z"),
		r.To.UTC().Format("20060102T150405Z"),
		scope,
	)
}

// InvalidBackfillFailure reports a backfill request that cannot be run.
type InvalidBackfillFailure struct {
	Reason string
}

// BackfillSummary reports a completed backfill run.
type BackfillSummary struct {
	RunKey         string
	Players        int
	Batches        int
	SkippedBatches int
	RowsUpserted   int64
	Milestones     int
	Elapsed        time.Duration
}

// RunBackfill recomputes aggregates for every player active in the window by
// rebuilding their contribution rows from raw session history and replaying
// the same recompute rules the live path uses. Work proceeds in batches of
// recently-active players first; each batch commits atomically together with
// its completion marker, so an interrupted run resumed under the same key
// picks up at the first unfinished batch. The first batch error aborts the
// run.
func (s *StatsService) RunBackfill(ctx context.Context, req BackfillRequest) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "RunBackfill", req.Key(), func(ctx context.Context) (StatsOperationResult, error) {
		if req.From.IsZero() || req.To.IsZero() || !req.From.Before(req.To) {
			return StatsOperationResult{Failure: &InvalidBackfillFailure{Reason: "window start must precede window end"}}, nil
		}

		start := time.Now()
		runKey := req.Key()
		summary := &BackfillSummary{RunKey: runKey}

		err := s.locks.RunExclusive(ctx, regionlock.RegionPlayerAggregates, func(ctx context.Context) error {
			players, err := s.repo.DistinctPlayersByRecency(ctx, nil, req.From, req.To, req.Server)
			if err != nil {
				return err
			}
			summary.Players = len(players)

			for index := 0; index*s.backfillBatchSize < len(players); index++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				done, err := s.repo.HasBackfillBatch(ctx, nil, runKey, index)
				if err != nil {
					return err
				}
				if done {
					summary.SkippedBatches++
					continue
				}

				lo := index * s.backfillBatchSize
				hi := lo + s.backfillBatchSize
				if hi > len(players) {
					hi = len(players)
				}
				if err := s.runBackfillBatch(ctx, req, runKey, index, players[lo:hi], summary); err != nil {
					return fmt.Errorf("batch %d: %w", index, err)
				}
				summary.Batches++
			}
			return nil
		})
		if err != nil {
			return StatsOperationResult{}, err
		}

		servers, err := s.repo.ServersInWindow(ctx, nil, req.From, req.To, req.Server)
		if err != nil {
			return StatsOperationResult{}, err
		}
		if err := s.recomputeServerRollups(ctx, servers); err != nil {
			return StatsOperationResult{}, err
		}

		summary.Elapsed = time.Since(start)
		s.logger.InfoContext(ctx, "backfill run finished",
			attr.String("run_key", runKey),
			attr.Int("players", summary.Players),
			attr.Int("batches", summary.Batches),
			attr.Int("skipped_batches", summary.SkippedBatches),
			attr.Int64("rows_upserted", summary.RowsUpserted),
			attr.Duration("elapsed", summary.Elapsed),
		)
		return StatsOperationResult{Success: summary}, nil
	})
}

// runBackfillBatch rebuilds and recomputes one batch of players in a single
// transaction that also writes the batch marker. Either the whole batch lands
// or none of it does; metrics fire only after commit.
func (s *StatsService) runBackfillBatch(
	ctx context.Context,
	req BackfillRequest,
	runKey string,
	index int,
	players []sharedtypes.PlayerName,
	summary *BackfillSummary,
) error {
	var (
		rows    int64
		awarded []int
	)
	_, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (StatsOperationResult, error) {
		var txErr error
		rows, txErr = s.repo.RebuildContributionsForPlayers(ctx, db, players, req.From, req.To)
		if txErr != nil {
			return StatsOperationResult{}, txErr
		}
		for _, player := range players {
			playerAwarded, txErr := s.recomputePlayer(ctx, db, UpdateKey{Player: player}, nil)
			if txErr != nil {
				return StatsOperationResult{}, fmt.Errorf("player %s: %w", player, txErr)
			}
			awarded = append(awarded, playerAwarded...)
		}
		return StatsOperationResult{}, s.repo.RecordBackfillBatch(ctx, db, &statsdb.BackfillBatch{
			RunKey:      runKey,
			BatchIndex:  index,
			Players:     len(players),
			ProcessedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	summary.RowsUpserted += rows
	summary.Milestones += len(awarded)
	for _, threshold := range awarded {
		s.metrics.RecordMilestoneAwarded(ctx, threshold)
	}
	s.metrics.RecordBackfillBatch(ctx, len(players))
	s.logger.InfoContext(ctx, "backfill batch committed",
		attr.String("run_key", runKey),
		attr.Int("batch_index", index),
		attr.Int("players", len(players)),
		attr.Int64("rows_upserted", rows),
	)
	return nil
}
