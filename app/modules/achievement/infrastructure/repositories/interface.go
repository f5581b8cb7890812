package achievementdb

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Repository is the achievement store interface. The db parameter threads an
// ambient transaction; nil falls back to the repository's own connection.
type Repository interface {
	// GetCheckpoint returns the named cursor, zero time when absent.
	GetCheckpoint(ctx context.Context, db bun.IDB, name string) (time.Time, error)
	SaveCheckpoint(ctx context.Context, db bun.IDB, name string, cursor time.Time) error

	// CompletedRoundsSince lists finished, non-deleted rounds with
	// end_time >= cursor in event-time order, at most limit rows.
	CompletedRoundsSince(ctx context.Context, db bun.IDB, cursor time.Time, limit int) ([]CompletedRound, error)
	ParticipantsWithTotals(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]RoundParticipantStats, error)

	// InsertAchievements inserts the candidate rows, skipping rows whose
	// (player, code, round) key already exists, and returns the codes of the
	// rows actually inserted.
	InsertAchievements(ctx context.Context, db bun.IDB, rows []*PlayerAchievement) ([]string, error)
}
