package sources

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Adapter normalizes one upstream feed's JSON into server snapshots. The
// three supported feeds share no schema, so each game carries its own
// adapter; everything downstream sees only sharedtypes.ServerSnapshot.
type Adapter interface {
	Parse(data []byte) ([]sharedtypes.ServerSnapshot, error)
}

// AdapterForGame returns the adapter for a supported title.
func AdapterForGame(game sharedtypes.Game) (Adapter, error) {
	switch game {
	case sharedtypes.GameBF1942:
		return bf1942Adapter{}, nil
	case sharedtypes.GameFH2:
		return fh2Adapter{}, nil
	case sharedtypes.GameBFV:
		return bfvAdapter{}, nil
	}
	return nil, fmt.Errorf("no adapter for game %q", game)
}

// --- bf1942 master list ---
//
// Flat array, one object per server, players inline. The only feed that
// issues its own server GUIDs.

type bf1942Server struct {
	Guid       string          `json:"guid"`
	Name       string          `json:"name"`
	IP         string          `json:"ip"`
	Port       int             `json:"port"`
	MapName    string          `json:"mapName"`
	GameType   string          `json:"gameType"`
	MaxPlayers int             `json:"maxPlayers"`
	Tickets1   int             `json:"tickets1"`
	Tickets2   int             `json:"tickets2"`
	Team1      string          `json:"team1"`
	Team2      string          `json:"team2"`
	JoinLink   string          `json:"joinLink"`
	Players    []bf1942Player  `json:"players"`
}

type bf1942Player struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Kills  int    `json:"kills"`
	Deaths int    `json:"deaths"`
	Ping   int    `json:"ping"`
	Team   int    `json:"team"`
	AIBot  bool   `json:"aibot"`
}

type bf1942Adapter struct{}

func (bf1942Adapter) Parse(data []byte) ([]sharedtypes.ServerSnapshot, error) {
	var servers []bf1942Server
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse bf1942 feed: %w", err)
	}

	snapshots := make([]sharedtypes.ServerSnapshot, 0, len(servers))
	for _, srv := range servers {
		snapshot := sharedtypes.ServerSnapshot{
			Guid:       sharedtypes.ServerGuid(srv.Guid),
			Name:       srv.Name,
			Address:    srv.IP,
			Port:       srv.Port,
			MapName:    srv.MapName,
			GameType:   srv.GameType,
			MaxPlayers: srv.MaxPlayers,
			Tickets1:   srv.Tickets1,
			Tickets2:   srv.Tickets2,
			Team1Label: srv.Team1,
			Team2Label: srv.Team2,
			JoinLink:   srv.JoinLink,
		}
		for _, p := range srv.Players {
			snapshot.Players = append(snapshot.Players, sharedtypes.PlayerInfo{
				Name:      sharedtypes.PlayerName(p.Name),
				Score:     p.Score,
				Kills:     p.Kills,
				Deaths:    p.Deaths,
				Ping:      p.Ping,
				TeamIndex: p.Team,
				IsBot:     p.AIBot,
			})
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// --- fh2 launcher feed ---
//
// Wrapped in a "servers" envelope, address as host:port, players grouped
// under their team. No GUIDs; ingest derives one from the address.

type fh2Feed struct {
	Servers []fh2Server `json:"servers"`
}

type fh2Server struct {
	Hostname string    `json:"hostname"`
	Address  string    `json:"address"`
	Map      string    `json:"map"`
	GameMode string    `json:"gamemode"`
	MaxSlots int       `json:"max_slots"`
	Teams    []fh2Team `json:"teams"`
}

type fh2Team struct {
	Label   string      `json:"label"`
	Tickets int         `json:"tickets"`
	Players []fh2Player `json:"players"`
}

type fh2Player struct {
	Nick   string `json:"nick"`
	Score  int    `json:"score"`
	Kills  int    `json:"kills"`
	Deaths int    `json:"deaths"`
	Ping   int    `json:"ping"`
	Bot    bool   `json:"bot"`
}

type fh2Adapter struct{}

func (fh2Adapter) Parse(data []byte) ([]sharedtypes.ServerSnapshot, error) {
	var feed fh2Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse fh2 feed: %w", err)
	}

	snapshots := make([]sharedtypes.ServerSnapshot, 0, len(feed.Servers))
	for _, srv := range feed.Servers {
		host, port, err := splitHostPort(srv.Address)
		if err != nil {
			return nil, fmt.Errorf("fh2 server %q: %w", srv.Hostname, err)
		}
		snapshot := sharedtypes.ServerSnapshot{
			Name:       srv.Hostname,
			Address:    host,
			Port:       port,
			MapName:    srv.Map,
			GameType:   srv.GameMode,
			MaxPlayers: srv.MaxSlots,
		}
		for i, team := range srv.Teams {
			switch i {
			case 0:
				snapshot.Team1Label = team.Label
				snapshot.Tickets1 = team.Tickets
			case 1:
				snapshot.Team2Label = team.Label
				snapshot.Tickets2 = team.Tickets
			}
			for _, p := range team.Players {
				snapshot.Players = append(snapshot.Players, sharedtypes.PlayerInfo{
					Name:      sharedtypes.PlayerName(p.Nick),
					Score:     p.Score,
					Kills:     p.Kills,
					Deaths:    p.Deaths,
					Ping:      p.Ping,
					TeamIndex: i + 1,
					TeamLabel: team.Label,
					IsBot:     p.Bot,
				})
			}
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// --- bfvietnam list ---
//
// Flat array with snake_case server fields and prefixed player fields.
// No GUIDs; ingest derives one from the address.

type bfvServer struct {
	ServerName   string      `json:"server_name"`
	IP           string      `json:"ip"`
	GamePort     int         `json:"game_port"`
	MapName      string      `json:"map_name"`
	Mode         string      `json:"mode"`
	NumMaxPlayers int        `json:"num_max_players"`
	TicketsTeam1 int         `json:"tickets_team1"`
	TicketsTeam2 int         `json:"tickets_team2"`
	Team1Name    string      `json:"team1_name"`
	Team2Name    string      `json:"team2_name"`
	Players      []bfvPlayer `json:"players"`
}

type bfvPlayer struct {
	PlayerName   string `json:"playerName"`
	PlayerScore  int    `json:"playerScore"`
	PlayerKills  int    `json:"playerKills"`
	PlayerDeaths int    `json:"playerDeaths"`
	PlayerPing   int    `json:"playerPing"`
	TeamIndex    int    `json:"teamIndex"`
	IsAIBot      bool   `json:"isAIBot"`
}

type bfvAdapter struct{}

func (bfvAdapter) Parse(data []byte) ([]sharedtypes.ServerSnapshot, error) {
	var servers []bfvServer
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("failed to parse bfvietnam feed: %w", err)
	}

	snapshots := make([]sharedtypes.ServerSnapshot, 0, len(servers))
	for _, srv := range servers {
		snapshot := sharedtypes.ServerSnapshot{
			Name:       srv.ServerName,
			Address:    srv.IP,
			Port:       srv.GamePort,
			MapName:    srv.MapName,
			GameType:   srv.Mode,
			MaxPlayers: srv.NumMaxPlayers,
			Tickets1:   srv.TicketsTeam1,
			Tickets2:   srv.TicketsTeam2,
			Team1Label: srv.Team1Name,
			Team2Label: srv.Team2Name,
		}
		for _, p := range srv.Players {
			snapshot.Players = append(snapshot.Players, sharedtypes.PlayerInfo{
				Name:      sharedtypes.PlayerName(p.PlayerName),
				Score:     p.PlayerScore,
				Kills:     p.PlayerKills,
				Deaths:    p.PlayerDeaths,
				Ping:      p.PlayerPing,
				TeamIndex: p.TeamIndex,
				IsBot:     p.IsAIBot,
			})
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func splitHostPort(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("bad address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad port in %q: %w", address, err)
	}
	return host, port, nil
}
