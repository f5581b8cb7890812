package achievementservice

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// checkpointName is the processor's row in processor_checkpoints.
const checkpointName = "achievements"

// SweepSummary describes one processor pass.
type SweepSummary struct {
	Rounds  int
	Awarded int
	Cursor  time.Time
}

// RunOnce scans completed rounds from the cursor forward, awards achievements,
// and advances the cursor to the last processed end time. Awards, new rows,
// and the cursor commit in one transaction, so the cursor never passes work
// that could still roll back. The fetch is inclusive of the cursor timestamp:
// the boundary round is re-scanned and its awards are structurally no-ops.
func (s *AchievementService) RunOnce(ctx context.Context) (AchievementOperationResult, error) {
	return s.serviceWrapper(ctx, "RunOnce", checkpointName, func(ctx context.Context) (AchievementOperationResult, error) {
		var summary *SweepSummary
		var inserted []string

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (AchievementOperationResult, error) {
			cursor, err := s.repo.GetCheckpoint(ctx, db, checkpointName)
			if err != nil {
				return AchievementOperationResult{}, err
			}

			rounds, err := s.repo.CompletedRoundsSince(ctx, db, cursor, s.scanLimit)
			if err != nil {
				return AchievementOperationResult{}, err
			}

			summary = &SweepSummary{Cursor: cursor}
			if len(rounds) == 0 {
				return AchievementOperationResult{Success: summary}, nil
			}

			var candidates []*achievementdb.PlayerAchievement
			for _, round := range rounds {
				participants, err := s.repo.ParticipantsWithTotals(ctx, db, round.RoundID)
				if err != nil {
					return AchievementOperationResult{}, fmt.Errorf("round %s: %w", round.RoundID, err)
				}
				for _, participant := range participants {
					candidates = append(candidates, evaluateRules(round, participant)...)
				}
			}

			if len(candidates) > 0 {
				inserted, err = s.repo.InsertAchievements(ctx, db, candidates)
				if err != nil {
					return AchievementOperationResult{}, err
				}
			}

			// Rounds arrive in event-time order, so the last one carries the
			// new cursor.
			cursor = rounds[len(rounds)-1].EndTime
			if err := s.repo.SaveCheckpoint(ctx, db, checkpointName, cursor); err != nil {
				return AchievementOperationResult{}, err
			}

			summary.Rounds = len(rounds)
			summary.Awarded = len(inserted)
			summary.Cursor = cursor
			return AchievementOperationResult{Success: summary}, nil
		})
		if err != nil {
			return result, err
		}

		// Measurements report committed work only.
		s.metrics.RecordRoundsScanned(ctx, summary.Rounds)
		byCode := make(map[string]int, len(inserted))
		for _, code := range inserted {
			byCode[code]++
		}
		for code, count := range byCode {
			s.metrics.RecordAchievementsAwarded(ctx, code, count)
		}
		if !summary.Cursor.IsZero() {
			s.metrics.RecordCheckpointLag(ctx, time.Since(summary.Cursor))
		}

		if summary.Rounds > 0 {
			s.logger.InfoContext(ctx, "achievement sweep finished",
				attr.Int("rounds", summary.Rounds),
				attr.Int("awarded", summary.Awarded),
				attr.Time("cursor", summary.Cursor),
			)
		}
		return result, nil
	})
}

// Sweep runs one processor pass and reports only the error, matching the
// queue worker's contract.
func (s *AchievementService) Sweep(ctx context.Context) error {
	_, err := s.RunOnce(ctx)
	return err
}
