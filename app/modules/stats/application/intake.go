package statsservice

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// RoundAppliedSummary reports a stored round completion.
type RoundAppliedSummary struct {
	RoundID sharedtypes.RoundID
	Players int
}

// InvalidCompletionFailure rejects a completion the pipeline cannot attribute.
type InvalidCompletionFailure struct {
	Reason string
}

// HandleRoundCompleted persists every participant's contribution and queues
// their aggregate recomputes. The contribution upsert is what makes replayed
// completions harmless: the queue only schedules work, it never carries the
// authoritative numbers.
func (s *StatsService) HandleRoundCompleted(ctx context.Context, payload sharedevents.RoundCompletedPayload) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "HandleRoundCompleted", string(payload.RoundID), func(ctx context.Context) (StatsOperationResult, error) {
		if payload.RoundID == "" {
			return StatsOperationResult{Failure: &InvalidCompletionFailure{Reason: "missing round id"}}, nil
		}
		if len(payload.Participants) == 0 {
			return StatsOperationResult{Success: &RoundAppliedSummary{RoundID: payload.RoundID}}, nil
		}

		rows := contributionRows(payload)

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (StatsOperationResult, error) {
			if err := s.repo.UpsertRoundContributions(ctx, db, rows); err != nil {
				return StatsOperationResult{}, err
			}
			return StatsOperationResult{Success: &RoundAppliedSummary{
				RoundID: payload.RoundID,
				Players: len(rows),
			}}, nil
		})
		if err != nil {
			return result, err
		}

		for _, row := range rows {
			s.queue.Enqueue(row.PlayerName, row.ServerGuid, &RoundCompletion{
				RoundID:     row.RoundID,
				MapName:     row.MapName,
				EndTime:     payload.EndTime,
				Score:       row.Score,
				Kills:       row.Kills,
				Deaths:      row.Deaths,
				PlayMinutes: row.PlayMinutes,
			})
		}
		s.metrics.RecordQueueDepth(ctx, s.queue.Len())

		s.logger.InfoContext(ctx, "round contributions stored",
			attr.RoundID("round_id", payload.RoundID),
			attr.Int("players", len(rows)),
		)
		return result, nil
	})
}

// SessionQueuedSummary reports a queued recompute trigger.
type SessionQueuedSummary struct {
	Player     sharedtypes.PlayerName
	ServerGuid sharedtypes.ServerGuid
}

// HandleSessionClosed queues a recompute for the player. Sessions change no
// contribution rows themselves; the trigger keeps rollups current after
// timeout sweeps complete heuristic rounds.
func (s *StatsService) HandleSessionClosed(ctx context.Context, payload sharedevents.SessionClosedPayload) (StatsOperationResult, error) {
	return s.serviceWrapper(ctx, "HandleSessionClosed", payload.Player.String(), func(ctx context.Context) (StatsOperationResult, error) {
		if payload.Player == "" || payload.ServerGuid == "" {
			return StatsOperationResult{Failure: &InvalidCompletionFailure{Reason: "missing player or server"}}, nil
		}
		s.queue.Enqueue(payload.Player, payload.ServerGuid, nil)
		s.metrics.RecordQueueDepth(ctx, s.queue.Len())
		return StatsOperationResult{Success: &SessionQueuedSummary{
			Player:     payload.Player,
			ServerGuid: payload.ServerGuid,
		}}, nil
	})
}

// contributionRows flattens a completion payload into contribution rows,
// merging any duplicate player entries so the upsert key is unique. Merging
// is order-independent: sums do not care which entry came first.
func contributionRows(payload sharedevents.RoundCompletedPayload) []*statsdb.PlayerRoundStats {
	now := time.Now()
	rows := make([]*statsdb.PlayerRoundStats, 0, len(payload.Participants))
	index := make(map[sharedtypes.PlayerName]int, len(payload.Participants))
	for _, p := range payload.Participants {
		if p.Player == "" {
			continue
		}
		if i, ok := index[p.Player]; ok {
			rows[i].Score += p.Score
			rows[i].Kills += p.Kills
			rows[i].Deaths += p.Deaths
			rows[i].PlayMinutes += p.PlayMinutes
			continue
		}
		index[p.Player] = len(rows)
		rows = append(rows, &statsdb.PlayerRoundStats{
			PlayerName:  p.Player,
			RoundID:     payload.RoundID,
			ServerGuid:  payload.ServerGuid,
			MapName:     payload.MapName,
			Score:       p.Score,
			Kills:       p.Kills,
			Deaths:      p.Deaths,
			PlayMinutes: p.PlayMinutes,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return rows
}
