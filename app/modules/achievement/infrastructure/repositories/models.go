package achievementdb

import (
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// PlayerAchievement is one awarded achievement. Round-scoped codes carry the
// round that earned them; one-time codes use the empty round sentinel, so the
// unique index on (player_name, code, round_id) blocks a second award forever.
type PlayerAchievement struct {
	bun.BaseModel `bun:"table:player_achievements,alias:pa"`

	ID         int64                  `bun:"id,pk,autoincrement"`
	PlayerName sharedtypes.PlayerName `bun:"player_name,notnull"`
	Code       string                 `bun:"code,notnull"`
	RoundID    sharedtypes.RoundID    `bun:"round_id,notnull,default:''"`
	Value      int                    `bun:"value,notnull,default:0"`
	EarnedAt   time.Time              `bun:"earned_at,notnull"`
	CreatedAt  time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// ProcessorCheckpoint is a named event-time cursor. The achievement processor
// owns the 'achievements' row; the table is shared so future processors get
// the same resume semantics.
type ProcessorCheckpoint struct {
	bun.BaseModel `bun:"table:processor_checkpoints,alias:pc"`

	Name      string    `bun:"name,pk"`
	Cursor    time.Time `bun:"cursor,notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// CompletedRound is the slice of a round the processor scans.
type CompletedRound struct {
	RoundID    sharedtypes.RoundID    `bun:"id"`
	ServerGuid sharedtypes.ServerGuid `bun:"server_guid"`
	MapName    string                 `bun:"map_name"`
	EndTime    time.Time              `bun:"end_time"`
}

// RoundParticipantStats is one player's contribution to a scanned round plus
// the player's completed-round ordinal through that round. The ordinal is
// computed from the full contribution store, not from scan order, so it is
// stable across reruns.
type RoundParticipantStats struct {
	PlayerName    sharedtypes.PlayerName `bun:"player_name"`
	Score         int                    `bun:"score"`
	Kills         int                    `bun:"kills"`
	Deaths        int                    `bun:"deaths"`
	PlayMinutes   float64                `bun:"play_minutes"`
	RoundsThrough int                    `bun:"rounds_through"`
}
