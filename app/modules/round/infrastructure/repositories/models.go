package rounddb

import (
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Round is one map rotation on one server. The ID is derived from server,
// map, and start second, so the same boundary always resolves to the same
// row. A partial unique index keeps at most one active round per server.
type Round struct {
	bun.BaseModel `bun:"table:rounds,alias:r"`

	ID                sharedtypes.RoundID    `bun:"id,pk"`
	ServerGuid        sharedtypes.ServerGuid `bun:"server_guid,notnull"`
	ServerName        string                 `bun:"server_name,nullzero"`
	Game              sharedtypes.Game       `bun:"game,notnull"`
	MapName           string                 `bun:"map_name,notnull"`
	GameType          string                 `bun:"game_type,nullzero"`
	StartTime         time.Time              `bun:"start_time,notnull"`
	EndTime           time.Time              `bun:"end_time,nullzero"`
	LastObservationAt time.Time              `bun:"last_observation_at,notnull"`
	Active            bool                   `bun:"active,notnull,default:true"`
	Deleted           bool                   `bun:"deleted,notnull,default:false"`
	ParticipantCount  int                    `bun:"participant_count,notnull,default:0"`
	Tickets1          int                    `bun:"tickets1"`
	Tickets2          int                    `bun:"tickets2"`
	CreatedAt         time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// RoundObservation is one ticket sample for an active round. Append only.
type RoundObservation struct {
	bun.BaseModel `bun:"table:round_observations,alias:ro"`

	ID          int64               `bun:"id,pk,autoincrement"`
	RoundID     sharedtypes.RoundID `bun:"round_id,notnull"`
	Timestamp   time.Time           `bun:"ts,notnull"`
	PlayerCount int                 `bun:"player_count,notnull"`
	Tickets1    int                 `bun:"tickets1"`
	Tickets2    int                 `bun:"tickets2"`
}

// SessionInterval is the slice of a player session the participant query
// reads from the session store. Bots are filtered out by the query itself.
type SessionInterval struct {
	PlayerName   sharedtypes.PlayerName `bun:"player_name"`
	StartTime    time.Time              `bun:"start_time"`
	LastSeenTime time.Time              `bun:"last_seen_time"`
	TotalScore   int                    `bun:"total_score"`
	TotalKills   int                    `bun:"total_kills"`
	TotalDeaths  int                    `bun:"total_deaths"`
}

// WindowSessionInterval is a session interval read across every map of one
// server. Window reconciliation regroups these into rounds.
type WindowSessionInterval struct {
	PlayerName   sharedtypes.PlayerName `bun:"player_name"`
	MapName      string                 `bun:"map_name"`
	StartTime    time.Time              `bun:"start_time"`
	LastSeenTime time.Time              `bun:"last_seen_time"`
	TotalScore   int                    `bun:"total_score"`
	TotalKills   int                    `bun:"total_kills"`
	TotalDeaths  int                    `bun:"total_deaths"`
	Active       bool                   `bun:"active"`
}

// ServerIdentity is the display identity of a server as the session store
// knows it.
type ServerIdentity struct {
	Name string           `bun:"name"`
	Game sharedtypes.Game `bun:"game"`
}
