package sessiondb

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Repository is the persistence interface for servers, players, sessions, and
// observations. Methods accept a bun.IDB so they run against the pool or a
// transaction; passing nil uses the repository's own DB.
type Repository interface {
	GetServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*GameServer, error)
	UpsertServer(ctx context.Context, db bun.IDB, server *GameServer) error
	UpdateServerGeo(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, geo ServerGeo) error
	ListServers(ctx context.Context, db bun.IDB) ([]GameServer, error)

	UpsertPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, seenAt time.Time, bot bool) error
	AddPlayMinutes(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, minutes float64) error
	GetPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName) (*Player, error)

	ActiveSessionsForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) ([]PlayerSession, error)
	InsertSession(ctx context.Context, db bun.IDB, session *PlayerSession) error
	UpdateSessionProgress(ctx context.Context, db bun.IDB, session *PlayerSession) error
	CloseSessions(ctx context.Context, db bun.IDB, ids []sharedtypes.SessionID) error
	CloseTimedOutSessions(ctx context.Context, db bun.IDB, cutoff time.Time) ([]PlayerSession, error)

	InsertObservation(ctx context.Context, db bun.IDB, observation *PlayerObservation) error
}
