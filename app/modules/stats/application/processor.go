package statsservice

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	"github.com/frontline-stats/sitrep/internal/regionlock"
)

// BatchSummary reports one drain pass.
type BatchSummary struct {
	Keys       int
	Failed     int
	Milestones int
	Servers    int
}

// ProcessPending drains the update queue and recomputes aggregates for every
// drained key. Player aggregates run one transaction per key under the
// player-aggregates region; server rollups follow under their own regions.
// The three regions are never held together. Failed keys go back on the queue
// for the next drain.
func (s *StatsService) ProcessPending(ctx context.Context) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "ProcessPending", "", func(ctx context.Context) (StatsOperationResult, error) {
		batch := s.queue.DrainBatch()
		s.metrics.RecordQueueDepth(ctx, s.queue.Len())
		if len(batch) == 0 {
			return StatsOperationResult{Success: &BatchSummary{}}, nil
		}

		start := time.Now()
		summary := &BatchSummary{Keys: len(batch)}
		touched := make(map[sharedtypes.ServerGuid]struct{})

		var requeue []PendingUpdate
		err := s.locks.RunExclusive(ctx, regionlock.RegionPlayerAggregates, func(ctx context.Context) error {
			for i, pending := range batch {
				if ctx.Err() != nil {
					requeue = append(requeue, batch[i:]...)
					return ctx.Err()
				}
				if err := s.applyPlayerUpdate(ctx, pending, summary); err != nil {
					s.logger.ErrorContext(ctx, "aggregate update failed",
						attr.PlayerName("player", pending.Key.Player),
						attr.ServerGuid("server_guid", pending.Key.ServerGuid),
						attr.Error(err),
					)
					summary.Failed++
					requeue = append(requeue, pending)
					continue
				}
				touched[pending.Key.ServerGuid] = struct{}{}
			}
			return nil
		})
		for _, pending := range requeue {
			s.queue.Enqueue(pending.Key.Player, pending.Key.ServerGuid, pending.Completion)
		}
		if err != nil {
			return StatsOperationResult{}, err
		}

		servers := make([]sharedtypes.ServerGuid, 0, len(touched))
		for guid := range touched {
			servers = append(servers, guid)
		}
		if err := s.recomputeServerRollups(ctx, servers); err != nil {
			return StatsOperationResult{}, err
		}
		summary.Servers = len(servers)

		s.metrics.RecordBatchProcessed(ctx, len(batch), time.Since(start))
		return StatsOperationResult{Success: summary}, nil
	})
}

// applyPlayerUpdate recomputes one player's aggregate group in a single
// transaction, then records milestone metrics once the work is committed.
func (s *StatsService) applyPlayerUpdate(ctx context.Context, pending PendingUpdate, summary *BatchSummary) error {
	var awarded []int
	_, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (StatsOperationResult, error) {
		var txErr error
		awarded, txErr = s.recomputePlayer(ctx, db, pending.Key, pending.Completion)
		return StatsOperationResult{}, txErr
	})
	if err != nil {
		return err
	}
	for _, threshold := range awarded {
		s.metrics.RecordMilestoneAwarded(ctx, threshold)
		s.logger.InfoContext(ctx, "kill milestone awarded",
			attr.PlayerName("player", pending.Key.Player),
			attr.Int("threshold", threshold),
		)
	}
	summary.Milestones += len(awarded)
	return nil
}

// recomputePlayer applies every aggregation rule for one player. All values
// derive from the contribution store, so the call is safe to repeat and its
// outcome does not depend on what triggered it.
func (s *StatsService) recomputePlayer(ctx context.Context, db bun.IDB, key UpdateKey, completion *RoundCompletion) ([]int, error) {
	oldKills, err := s.repo.LifetimeKills(ctx, db, key.Player)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RecomputeLifetime(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if err := s.repo.RecomputeServerStats(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if err := s.repo.RecomputeMapStats(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if err := s.repo.RecomputeServerMapPlayerStats(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if err := s.repo.RecomputeDailyStats(ctx, db, key.Player); err != nil {
		return nil, err
	}

	newKills, err := s.repo.LifetimeKills(ctx, db, key.Player)
	if err != nil {
		return nil, err
	}
	awarded, err := s.detectMilestones(ctx, db, key.Player, oldKills, newKills)
	if err != nil {
		return nil, err
	}

	if err := s.repo.PruneDeletedBestScores(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if err := s.repo.RebuildAllTimeBestScores(ctx, db, key.Player); err != nil {
		return nil, err
	}
	if completion != nil && completion.RoundID != "" {
		if err := s.trackRollingBestScores(ctx, db, key, completion); err != nil {
			return nil, err
		}
	}
	return awarded, nil
}

// detectMilestones awards each threshold the player crossed from below to
// at-or-above. The unique constraint on (player, threshold) makes a repeated
// detection a no-op, and the crossing query attributes the row to the round
// that actually tipped the total, whichever path got here first.
func (s *StatsService) detectMilestones(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, oldKills, newKills int) ([]int, error) {
	var awarded []int
	for _, threshold := range KillMilestones {
		if oldKills >= threshold || newKills < threshold {
			continue
		}
		milestone := &statsdb.PlayerMilestone{
			PlayerName:     player,
			KillsThreshold: threshold,
			AchievedAt:     time.Now().UTC(),
		}
		crossing, err := s.repo.FindMilestoneCrossing(ctx, db, player, threshold)
		if err != nil {
			return awarded, err
		}
		if crossing != nil {
			milestone.RoundID = crossing.RoundID
			milestone.AchievedAt = crossing.AchievedAt
		}
		inserted, err := s.repo.InsertMilestone(ctx, db, milestone)
		if err != nil {
			return awarded, err
		}
		if inserted {
			awarded = append(awarded, threshold)
		}
	}
	return awarded, nil
}

// bestScoreWindow returns the rolling cutoff for a period, or zero for
// all-time.
func bestScoreWindow(period sharedtypes.Period, now time.Time) time.Time {
	switch period {
	case sharedtypes.PeriodWeek:
		return now.AddDate(0, 0, -7)
	case sharedtypes.PeriodMonth:
		return now.AddDate(0, 0, -30)
	}
	return time.Time{}
}

// trackRollingBestScores maintains the week and month top-3 sets for the
// completion that triggered this update. A score enters a period when the set
// has room or the score beats the current minimum, displacing it. The
// (player, period, round) uniqueness makes replays structural no-ops.
func (s *StatsService) trackRollingBestScores(ctx context.Context, db bun.IDB, key UpdateKey, completion *RoundCompletion) error {
	now := time.Now().UTC()
	for _, period := range []sharedtypes.Period{sharedtypes.PeriodWeek, sharedtypes.PeriodMonth} {
		cutoff := bestScoreWindow(period, now)
		if completion.EndTime.Before(cutoff) {
			continue
		}
		if err := s.repo.PruneExpiredBestScores(ctx, db, key.Player, period, cutoff); err != nil {
			return err
		}

		current, err := s.repo.ListBestScores(ctx, db, key.Player, period)
		if err != nil {
			return err
		}
		if len(current) >= 3 && completion.Score <= current[0].Score {
			continue
		}

		inserted, err := s.repo.InsertBestScore(ctx, db, &statsdb.PlayerBestScore{
			PlayerName: key.Player,
			Period:     period,
			Score:      completion.Score,
			MapName:    completion.MapName,
			ServerGuid: key.ServerGuid,
			RoundID:    completion.RoundID,
			AchievedAt: completion.EndTime,
		})
		if err != nil {
			return err
		}
		if inserted && len(current) >= 3 {
			if err := s.repo.DeleteBestScore(ctx, db, current[0].ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// recomputeServerRollups refreshes the server-level tables for the given
// servers, one region at a time. Must be called with no region held.
func (s *StatsService) recomputeServerRollups(ctx context.Context, servers []sharedtypes.ServerGuid) error {
	if len(servers) == 0 {
		return nil
	}

	err := s.locks.RunExclusive(ctx, regionlock.RegionServerMapStats, func(ctx context.Context) error {
		_, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (StatsOperationResult, error) {
			return StatsOperationResult{}, s.repo.RecomputeServerMapStats(ctx, db, servers)
		})
		return err
	})
	if err != nil {
		return err
	}

	return s.locks.RunExclusive(ctx, regionlock.RegionServerPlayerRankings, func(ctx context.Context) error {
		for _, guid := range servers {
			_, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (StatsOperationResult, error) {
				return StatsOperationResult{}, s.repo.RecomputeServerRankings(ctx, db, guid)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RoundRecomputeSummary reports an admin-triggered recompute.
type RoundRecomputeSummary struct {
	RoundID sharedtypes.RoundID
	Players int
	Batch   *BatchSummary
}

// RecomputeRound requeues every player who contributed to a round and drains
// immediately, so admin delete and restore take effect without waiting for
// the next tick. Contribution rows survive soft deletion, which is what makes
// the affected-player lookup possible after the round is already hidden.
func (s *StatsService) RecomputeRound(ctx context.Context, roundID sharedtypes.RoundID) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "RecomputeRound", string(roundID), func(ctx context.Context) (StatsOperationResult, error) {
		contributors, err := s.repo.RoundContributors(ctx, nil, roundID)
		if err != nil {
			return StatsOperationResult{}, err
		}
		summary := &RoundRecomputeSummary{RoundID: roundID, Players: len(contributors)}
		if len(contributors) == 0 {
			return StatsOperationResult{Success: summary}, nil
		}

		for _, c := range contributors {
			s.queue.Enqueue(c.PlayerName, c.ServerGuid, nil)
		}
		result, err := s.ProcessPending(ctx)
		if err != nil {
			return StatsOperationResult{}, err
		}
		if batch, ok := result.Success.(*BatchSummary); ok {
			summary.Batch = batch
		}
		return StatsOperationResult{Success: summary}, nil
	})
}
