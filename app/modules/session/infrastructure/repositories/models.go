package sessiondb

import (
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// GameServer is a tracked game server. Servers are created on first sight and
// never deleted; current_map and current_game_type mirror the latest snapshot.
type GameServer struct {
	bun.BaseModel `bun:"table:game_servers,alias:gs"`

	Guid            sharedtypes.ServerGuid `bun:"guid,pk"`
	Name            string                 `bun:"name,notnull"`
	Address         string                 `bun:"address,notnull"`
	Port            int                    `bun:"port,notnull"`
	Game            sharedtypes.Game       `bun:"game,notnull"`
	CurrentMap      string                 `bun:"current_map,nullzero"`
	CurrentGameType string                 `bun:"current_game_type,nullzero"`
	MaxPlayers      int                    `bun:"max_players"`
	JoinLink        string                 `bun:"join_link,nullzero"`
	Country         string                 `bun:"country,nullzero"`
	Region          string                 `bun:"region,nullzero"`
	City            string                 `bun:"city,nullzero"`
	Latitude        float64                `bun:"latitude,nullzero"`
	Longitude       float64                `bun:"longitude,nullzero"`
	FirstSeen       time.Time              `bun:"first_seen,notnull"`
	LastSeen        time.Time              `bun:"last_seen,notnull"`
	CreatedAt       time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// Player is a player identity keyed by in-game name. Rows accumulate play
// minutes over the player's whole history and are never deleted.
type Player struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	Name             sharedtypes.PlayerName `bun:"name,pk"`
	FirstSeen        time.Time              `bun:"first_seen,notnull"`
	LastSeen         time.Time              `bun:"last_seen,notnull"`
	TotalPlayMinutes float64                `bun:"total_play_minutes,notnull,default:0"`
	Bot              bool                   `bun:"bot,notnull,default:false"`
	CreatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerSession is one continuous presence of a player on a server and map.
// TotalScore and TotalKills hold running maxima across the session's
// observations; TotalDeaths holds the last observed value.
type PlayerSession struct {
	bun.BaseModel `bun:"table:player_sessions,alias:ps"`

	ID               sharedtypes.SessionID  `bun:"id,pk,autoincrement"`
	PlayerName       sharedtypes.PlayerName `bun:"player_name,notnull"`
	ServerGuid       sharedtypes.ServerGuid `bun:"server_guid,notnull"`
	MapName          string                 `bun:"map_name,notnull"`
	GameType         string                 `bun:"game_type,nullzero"`
	StartTime        time.Time              `bun:"start_time,notnull"`
	LastSeenTime     time.Time              `bun:"last_seen_time,notnull"`
	Active           bool                   `bun:"active,notnull,default:true"`
	ObservationCount int                    `bun:"observation_count,notnull,default:0"`
	TotalScore       int                    `bun:"total_score,notnull,default:0"`
	TotalKills       int                    `bun:"total_kills,notnull,default:0"`
	TotalDeaths      int                    `bun:"total_deaths,notnull,default:0"`
	CreatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time              `bun:",nullzero,notnull,default:current_timestamp"`
}

// PlayerObservation is one raw snapshot row for a session. Append only.
type PlayerObservation struct {
	bun.BaseModel `bun:"table:player_observations,alias:po"`

	ID        int64                 `bun:"id,pk,autoincrement"`
	SessionID sharedtypes.SessionID `bun:"session_id,notnull"`
	Timestamp time.Time             `bun:"ts,notnull"`
	Score     int                   `bun:"score,notnull"`
	Kills     int                   `bun:"kills,notnull"`
	Deaths    int                   `bun:"deaths,notnull"`
	Ping      int                   `bun:"ping"`
	TeamIndex int                   `bun:"team_index"`
	TeamLabel string                `bun:"team_label,nullzero"`
}

// ServerGeo carries the best-effort geo enrichment written outside the
// ingest transaction.
type ServerGeo struct {
	Country   string
	Region    string
	City      string
	Latitude  float64
	Longitude float64
}
