package statsdb

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Repository is the aggregate store interface. The db parameter threads an
// ambient transaction; nil falls back to the repository's own connection.
type Repository interface {
	// Contribution store
	UpsertRoundContributions(ctx context.Context, db bun.IDB, rows []*PlayerRoundStats) error
	RebuildContributionsForPlayers(ctx context.Context, db bun.IDB, players []sharedtypes.PlayerName, from, to time.Time) (int64, error)
	RoundContributors(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]RoundContributor, error)

	// Player aggregate group (player-aggregates region)
	LifetimeKills(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (int, error)
	RecomputeLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RecomputeServerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RecomputeMapStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RecomputeServerMapPlayerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RecomputeDailyStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	FindMilestoneCrossing(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, threshold int) (*MilestoneCrossing, error)
	InsertMilestone(ctx context.Context, db bun.IDB, milestone *PlayerMilestone) (bool, error)
	ListBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period) ([]PlayerBestScore, error)
	InsertBestScore(ctx context.Context, db bun.IDB, best *PlayerBestScore) (bool, error)
	DeleteBestScore(ctx context.Context, db bun.IDB, id int64) error
	PruneExpiredBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period, cutoff time.Time) error
	PruneDeletedBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RebuildAllTimeBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error

	// Server rollups (their own regions)
	RecomputeServerMapStats(ctx context.Context, db bun.IDB, servers []sharedtypes.ServerGuid) error
	RecomputeServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid) error

	// Backfill bookkeeping
	DistinctPlayersByRecency(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.PlayerName, error)
	ServersInWindow(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.ServerGuid, error)
	HasBackfillBatch(ctx context.Context, db bun.IDB, runKey string, batchIndex int) (bool, error)
	RecordBackfillBatch(ctx context.Context, db bun.IDB, batch *BackfillBatch) error

	// Reads for reporting
	DailyStatsSince(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, since time.Time) ([]PlayerDailyStats, error)
	ServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid, limit int) ([]ServerPlayerRanking, error)
	GetLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (*PlayerStatsLifetime, error)
}
