package sharedevents

import (
	"strings"
	"time"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Versioned topic constants. The first dot-segment names the JetStream stream
// the subject belongs to.
const (
	// session stream
	PlayerOnlineV1  = "session.player.online.v1"
	SessionClosedV1 = "session.closed.v1"

	// server stream
	ServerMapChangedV1       = "server.map.changed.v1"
	ServerSnapshotRecordedV1 = "server.snapshot.recorded.v1"

	// round stream
	RoundCompletedV1 = "round.completed.v1"
)

// StreamNameForTopic returns the JetStream stream a topic belongs to.
func StreamNameForTopic(topic string) string {
	if idx := strings.Index(topic, "."); idx > 0 {
		return topic[:idx]
	}
	return topic
}

// StreamSubjects maps each stream to the wildcard subject space it owns.
var StreamSubjects = map[string]string{
	"session": "session.>",
	"server":  "server.>",
	"round":   "round.>",
}

// PlayerOnlinePayload announces a newly opened session. Fire and forget;
// consumers surface "player came online" notifications.
type PlayerOnlinePayload struct {
	Player     sharedtypes.PlayerName `json:"player"`
	ServerGuid sharedtypes.ServerGuid `json:"server_guid"`
	ServerName string                 `json:"server_name"`
	MapName    string                 `json:"map_name"`
	GameType   string                 `json:"game_type"`
	SessionID  sharedtypes.SessionID  `json:"session_id"`
	SeenAt     time.Time              `json:"seen_at"`
}

// SessionClosedPayload announces a session leaving the active set, either by
// timeout sweep or by a map change.
type SessionClosedPayload struct {
	SessionID    sharedtypes.SessionID   `json:"session_id"`
	Player       sharedtypes.PlayerName  `json:"player"`
	ServerGuid   sharedtypes.ServerGuid  `json:"server_guid"`
	MapName      string                  `json:"map_name"`
	StartTime    time.Time               `json:"start_time"`
	LastSeenTime time.Time               `json:"last_seen_time"`
	Score        int                     `json:"score"`
	Kills        int                     `json:"kills"`
	Deaths       int                     `json:"deaths"`
	Reason       sharedtypes.CloseReason `json:"reason"`
}

// ServerMapChangedPayload announces a server rotating to a new map.
type ServerMapChangedPayload struct {
	ServerGuid sharedtypes.ServerGuid `json:"server_guid"`
	ServerName string                 `json:"server_name"`
	OldMap     string                 `json:"old_map"`
	NewMap     string                 `json:"new_map"`
	GameType   string                 `json:"game_type"`
	JoinLink   string                 `json:"join_link"`
	ChangedAt  time.Time              `json:"changed_at"`
}

// ServerSnapshotRecordedPayload is emitted after every committed snapshot
// batch. The round module consumes it for ticket samples and as a fallback
// boundary signal when a map change event was missed.
type ServerSnapshotRecordedPayload struct {
	ServerGuid  sharedtypes.ServerGuid `json:"server_guid"`
	ServerName  string                 `json:"server_name"`
	Game        sharedtypes.Game       `json:"game"`
	MapName     string                 `json:"map_name"`
	GameType    string                 `json:"game_type"`
	Timestamp   time.Time              `json:"timestamp"`
	PlayerCount int                    `json:"player_count"`
	Tickets1    int                    `json:"tickets1"`
	Tickets2    int                    `json:"tickets2"`
	Team1Label  string                 `json:"team1_label"`
	Team2Label  string                 `json:"team2_label"`
}

// RoundCompletedPayload carries a finished round and every participant's
// contribution. The stats module consumes it to queue aggregate updates.
type RoundCompletedPayload struct {
	RoundID      sharedtypes.RoundID            `json:"round_id"`
	ServerGuid   sharedtypes.ServerGuid         `json:"server_guid"`
	ServerName   string                         `json:"server_name"`
	MapName      string                         `json:"map_name"`
	GameType     string                         `json:"game_type"`
	StartTime    time.Time                      `json:"start_time"`
	EndTime      time.Time                      `json:"end_time"`
	Participants []sharedtypes.RoundParticipant `json:"participants"`
}
