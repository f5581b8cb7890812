package sharedtypes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlayerName is the primary identity for a player. Upstream snapshots carry no
// account IDs, so the in-game name is the key across all stores.
type PlayerName string

func (p PlayerName) String() string { return string(p) }

// ServerGuid identifies a game server. Servers that report a GUID keep it;
// servers that do not get a deterministic UUID derived from address:port.
type ServerGuid string

func (g ServerGuid) String() string { return string(g) }

// DeriveServerGuid builds a stable GUID for servers whose upstream source does
// not issue one. The same address:port always yields the same GUID.
func DeriveServerGuid(address string, port int) ServerGuid {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("gameserver://%s:%d", address, port)))
	return ServerGuid(id.String())
}

// RoundID is the deterministic identity for a round, a 32 hex character
// digest of the server, map, and canonical start time.
type RoundID string

func (r RoundID) String() string { return string(r) }

// DeriveRoundID digests server, map, and start second into a round identity.
// Both boundary detection paths derive the same ID for the same boundary, so
// replays and races collapse onto one row.
func DeriveRoundID(guid ServerGuid, mapName string, start time.Time) RoundID {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", guid, mapName, start.Unix())))
	return RoundID(hex.EncodeToString(sum[:])[:32])
}

// SessionID is the database identity of a player session.
type SessionID int64

// Game is the supported title set. The set is closed; adapters reject
// anything else at the boundary.
type Game string

const (
	GameBF1942 Game = "bf1942"
	GameFH2    Game = "fh2"
	GameBFV    Game = "bfvietnam"
)

// Valid reports whether g is one of the supported titles.
func (g Game) Valid() bool {
	switch g {
	case GameBF1942, GameFH2, GameBFV:
		return true
	}
	return false
}

// Period scopes best-score leaderboards.
type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodAllTime Period = "all"
)

// CloseReason records why a session stopped being active.
type CloseReason string

const (
	CloseReasonTimeout   CloseReason = "timeout"
	CloseReasonMapChange CloseReason = "map_change"
)

// PlayerInfo is one player's row in a server snapshot.
type PlayerInfo struct {
	Name      PlayerName `json:"name"`
	Score     int        `json:"score"`
	Kills     int        `json:"kills"`
	Deaths    int        `json:"deaths"`
	Ping      int        `json:"ping"`
	TeamIndex int        `json:"team_index"`
	TeamLabel string     `json:"team_label"`
	IsBot     bool       `json:"is_bot"`
}

// ServerSnapshot is the normalized shape every source adapter produces,
// regardless of title. One snapshot describes one server at one instant.
type ServerSnapshot struct {
	Guid       ServerGuid   `json:"guid"`
	Name       string       `json:"name"`
	Address    string       `json:"address"`
	Port       int          `json:"port"`
	Game       Game         `json:"game"`
	MapName    string       `json:"map_name"`
	GameType   string       `json:"game_type"`
	MaxPlayers int          `json:"max_players"`
	Tickets1   int          `json:"tickets1"`
	Tickets2   int          `json:"tickets2"`
	Team1Label string       `json:"team1_label"`
	Team2Label string       `json:"team2_label"`
	JoinLink   string       `json:"join_link"`
	Players    []PlayerInfo `json:"players"`
}

// RoundParticipant is a player's contribution to one completed round.
type RoundParticipant struct {
	Player      PlayerName `json:"player"`
	Score       int        `json:"score"`
	Kills       int        `json:"kills"`
	Deaths      int        `json:"deaths"`
	PlayMinutes float64    `json:"play_minutes"`
}
