package rounddb

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Repository is the persistence contract for rounds and their observations.
// Methods accept a bun.IDB so they run against the pool or a transaction;
// passing nil uses the repository's own DB.
type Repository interface {
	GetRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID) (*Round, error)
	ActiveRoundForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*Round, error)
	InsertRound(ctx context.Context, db bun.IDB, round *Round) error
	TouchRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, observedAt time.Time, tickets1, tickets2 int) error
	CompleteRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, endTime time.Time, participantCount int) error
	SetRoundDeleted(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, deleted bool) (bool, error)
	ListRecentRounds(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, limit int) ([]Round, error)

	InsertObservation(ctx context.Context, db bun.IDB, observation *RoundObservation) error

	// SessionsOverlapping reads non-bot session intervals from the session
	// store that intersect [start, end] on the given server and map.
	SessionsOverlapping(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]SessionInterval, error)

	// Window reconciliation
	SessionsInWindow(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, from, to time.Time) ([]WindowSessionInterval, error)
	RoundsIntersecting(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]Round, error)
	UpsertCompletedRound(ctx context.Context, db bun.IDB, round *Round) error
	ServerIdentity(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*ServerIdentity, error)
}
