package statsdb

import (
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// PlayerRoundStats is one player's contribution to one round. It is the
// durable input every aggregate recompute reads, so applying the same round
// completion twice rewrites the row with identical values. Rows survive a
// round's soft delete; the recompute queries exclude deleted rounds instead.
type PlayerRoundStats struct {
	bun.BaseModel `bun:"table:player_round_stats,alias:prs"`

	PlayerName  sharedtypes.PlayerName `bun:"player_name,pk"`
	RoundID     sharedtypes.RoundID    `bun:"round_id,pk"`
	ServerGuid  sharedtypes.ServerGuid `bun:"server_guid,notnull"`
	MapName     string                 `bun:"map_name,notnull"`
	Score       int                    `bun:"score,notnull,default:0"`
	Kills       int                    `bun:"kills,notnull,default:0"`
	Deaths      int                    `bun:"deaths,notnull,default:0"`
	PlayMinutes float64                `bun:"play_minutes,notnull,default:0"`
	CreatedAt   time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerStatsLifetime is the all-time rollup per player.
type PlayerStatsLifetime struct {
	bun.BaseModel `bun:"table:player_stats_lifetime,alias:pl"`

	PlayerName       sharedtypes.PlayerName `bun:"player_name,pk"`
	TotalKills       int                    `bun:"total_kills,notnull,default:0"`
	TotalDeaths      int                    `bun:"total_deaths,notnull,default:0"`
	TotalScore       int                    `bun:"total_score,notnull,default:0"`
	TotalPlayMinutes float64                `bun:"total_play_minutes,notnull,default:0"`
	KDRatio          float64                `bun:"kd_ratio,notnull,default:0"`
	KillsPerMinute   float64                `bun:"kills_per_minute,notnull,default:0"`
	RoundsPlayed     int                    `bun:"rounds_played,notnull,default:0"`
	LastRoundAt      time.Time              `bun:"last_round_at,nullzero"`
	UpdatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerServerStats is the per-server rollup, including the player's highest
// single-round score on that server. The highest score only moves when a round
// strictly beats it; ties keep the earlier round.
type PlayerServerStats struct {
	bun.BaseModel `bun:"table:player_server_stats,alias:pss"`

	PlayerName          sharedtypes.PlayerName `bun:"player_name,pk"`
	ServerGuid          sharedtypes.ServerGuid `bun:"server_guid,pk"`
	TotalKills          int                    `bun:"total_kills,notnull,default:0"`
	TotalDeaths         int                    `bun:"total_deaths,notnull,default:0"`
	TotalScore          int                    `bun:"total_score,notnull,default:0"`
	TotalPlayMinutes    float64                `bun:"total_play_minutes,notnull,default:0"`
	KDRatio             float64                `bun:"kd_ratio,notnull,default:0"`
	RoundsPlayed        int                    `bun:"rounds_played,notnull,default:0"`
	LastRoundAt         time.Time              `bun:"last_round_at,nullzero"`
	HighestRoundScore   int                    `bun:"highest_round_score,notnull,default:0"`
	HighestRoundScoreMap string                `bun:"highest_round_score_map,nullzero"`
	HighestRoundScoreAt time.Time              `bun:"highest_round_score_at,nullzero"`
	UpdatedAt           time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerMapStats is the cross-server per-map rollup.
type PlayerMapStats struct {
	bun.BaseModel `bun:"table:player_map_stats,alias:pms"`

	PlayerName       sharedtypes.PlayerName `bun:"player_name,pk"`
	MapName          string                 `bun:"map_name,pk"`
	TotalKills       int                    `bun:"total_kills,notnull,default:0"`
	TotalDeaths      int                    `bun:"total_deaths,notnull,default:0"`
	TotalScore       int                    `bun:"total_score,notnull,default:0"`
	TotalPlayMinutes float64                `bun:"total_play_minutes,notnull,default:0"`
	KDRatio          float64                `bun:"kd_ratio,notnull,default:0"`
	RoundsPlayed     int                    `bun:"rounds_played,notnull,default:0"`
	LastPlayedAt     time.Time              `bun:"last_played_at,nullzero"`
	UpdatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerServerMapStats is the per-server per-map rollup.
type PlayerServerMapStats struct {
	bun.BaseModel `bun:"table:player_server_map_stats,alias:psms"`

	PlayerName       sharedtypes.PlayerName `bun:"player_name,pk"`
	ServerGuid       sharedtypes.ServerGuid `bun:"server_guid,pk"`
	MapName          string                 `bun:"map_name,pk"`
	TotalKills       int                    `bun:"total_kills,notnull,default:0"`
	TotalDeaths      int                    `bun:"total_deaths,notnull,default:0"`
	TotalScore       int                    `bun:"total_score,notnull,default:0"`
	TotalPlayMinutes float64                `bun:"total_play_minutes,notnull,default:0"`
	KDRatio          float64                `bun:"kd_ratio,notnull,default:0"`
	RoundsPlayed     int                    `bun:"rounds_played,notnull,default:0"`
	LastPlayedAt     time.Time              `bun:"last_played_at,nullzero"`
	UpdatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerDailyStats buckets a player's contributions by UTC calendar day.
type PlayerDailyStats struct {
	bun.BaseModel `bun:"table:player_daily_stats,alias:pds"`

	PlayerName   sharedtypes.PlayerName `bun:"player_name,pk"`
	Day          time.Time              `bun:"day,pk,type:date"`
	Kills        int                    `bun:"kills,notnull,default:0"`
	Deaths       int                    `bun:"deaths,notnull,default:0"`
	Score        int                    `bun:"score,notnull,default:0"`
	PlayMinutes  float64                `bun:"play_minutes,notnull,default:0"`
	RoundsPlayed int                    `bun:"rounds_played,notnull,default:0"`
	UpdatedAt    time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerMilestone records one kill-count threshold crossing. The unique index
// on (player_name, kills_threshold) is what makes re-detection a no-op.
type PlayerMilestone struct {
	bun.BaseModel `bun:"table:player_milestones,alias:pm"`

	ID             int64                  `bun:"id,pk,autoincrement"`
	PlayerName     sharedtypes.PlayerName `bun:"player_name,notnull"`
	KillsThreshold int                    `bun:"kills_threshold,notnull"`
	RoundID        sharedtypes.RoundID    `bun:"round_id,nullzero"`
	AchievedAt     time.Time              `bun:"achieved_at,notnull"`
	CreatedAt      time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerBestScore is one entry of a player's top-3 round scores for a period.
// The unique index on (player_name, period, round_id) stops one round from
// occupying two slots and makes replay of a completion a no-op.
type PlayerBestScore struct {
	bun.BaseModel `bun:"table:player_best_scores,alias:pbs"`

	ID         int64                  `bun:"id,pk,autoincrement"`
	PlayerName sharedtypes.PlayerName `bun:"player_name,notnull"`
	Period     sharedtypes.Period     `bun:"period,notnull"`
	Score      int                    `bun:"score,notnull"`
	MapName    string                 `bun:"map_name,nullzero"`
	ServerGuid sharedtypes.ServerGuid `bun:"server_guid,nullzero"`
	RoundID    sharedtypes.RoundID    `bun:"round_id,notnull"`
	AchievedAt time.Time              `bun:"achieved_at,notnull"`
	CreatedAt  time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// ServerMapStats is the server-level map rollup. Its writes live in their own
// lock region, separate from the player aggregate group.
type ServerMapStats struct {
	bun.BaseModel `bun:"table:server_map_stats,alias:sms"`

	ServerGuid   sharedtypes.ServerGuid `bun:"server_guid,pk"`
	MapName      string                 `bun:"map_name,pk"`
	RoundsPlayed int                    `bun:"rounds_played,notnull,default:0"`
	TotalKills   int                    `bun:"total_kills,notnull,default:0"`
	TotalScore   int                    `bun:"total_score,notnull,default:0"`
	LastPlayedAt time.Time              `bun:"last_played_at,nullzero"`
	UpdatedAt    time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// ServerPlayerRanking is one row of a server's score ladder. The whole ladder
// for a server is recomputed in one transaction, so ranks are always dense.
type ServerPlayerRanking struct {
	bun.BaseModel `bun:"table:server_player_rankings,alias:spr"`

	ServerGuid  sharedtypes.ServerGuid `bun:"server_guid,pk"`
	PlayerName  sharedtypes.PlayerName `bun:"player_name,pk"`
	Rank        int                    `bun:"rank,notnull"`
	Score       int                    `bun:"score,notnull,default:0"`
	Kills       int                    `bun:"kills,notnull,default:0"`
	Deaths      int                    `bun:"deaths,notnull,default:0"`
	PlayMinutes float64                `bun:"play_minutes,notnull,default:0"`
	UpdatedAt   time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// BackfillBatch marks one committed batch of a backfill run. A rerun with the
// same run key skips recorded batch indexes.
type BackfillBatch struct {
	bun.BaseModel `bun:"table:backfill_batches,alias:bb"`

	RunKey      string    `bun:"run_key,pk"`
	BatchIndex  int       `bun:"batch_index,pk"`
	Players     int       `bun:"players,notnull"`
	ProcessedAt time.Time `bun:"processed_at,notnull"`
}

// MilestoneCrossing locates the round at which a player's cumulative kills
// first reached a threshold.
type MilestoneCrossing struct {
	RoundID    sharedtypes.RoundID `bun:"round_id"`
	AchievedAt time.Time           `bun:"achieved_at"`
}

// RoundContributor is the (player, server) pair a stored contribution row
// belongs to; used to requeue affected players after admin round edits.
type RoundContributor struct {
	PlayerName sharedtypes.PlayerName `bun:"player_name"`
	ServerGuid sharedtypes.ServerGuid `bun:"server_guid"`
}
