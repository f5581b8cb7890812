package testutils

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// TestDataGenerator produces realistic snapshot data for integration tests.
// Passing a fixed seed makes a test's data reproducible.
type TestDataGenerator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewTestDataGenerator creates a generator, seeded from the clock unless an
// explicit seed is given.
func NewTestDataGenerator(seed ...int64) *TestDataGenerator {
	var s int64
	if len(seed) > 0 {
		s = seed[0]
	} else {
		s = time.Now().UnixNano()
	}
	return &TestDataGenerator{
		faker: gofakeit.New(uint64(s)),
		seed:  s,
	}
}

// Seed returns the seed the generator was built with, for reproducing a
// failed run.
func (g *TestDataGenerator) Seed() int64 { return g.seed }

var mapPool = []string{
	"berlin", "stalingrad", "el_alamein", "wake_island", "omaha_beach",
	"kursk", "market_garden", "midway", "guadalcanal", "iwo_jima",
}

// GenerateMapName picks a map from the rotation pool.
func (g *TestDataGenerator) GenerateMapName() string {
	return mapPool[g.faker.Number(0, len(mapPool)-1)]
}

// GeneratePlayerName returns one in-game name.
func (g *TestDataGenerator) GeneratePlayerName() sharedtypes.PlayerName {
	return sharedtypes.PlayerName(fmt.Sprintf("%s_%d", g.faker.Gamertag(), g.faker.Number(10, 99)))
}

// GeneratePlayerNames returns count distinct player names.
func (g *TestDataGenerator) GeneratePlayerNames(count int) []sharedtypes.PlayerName {
	names := make([]sharedtypes.PlayerName, 0, count)
	seen := make(map[sharedtypes.PlayerName]struct{}, count)
	for len(names) < count {
		name := g.GeneratePlayerName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// GeneratePlayers builds snapshot rows for the given names with random
// scoreboard values.
func (g *TestDataGenerator) GeneratePlayers(names []sharedtypes.PlayerName) []sharedtypes.PlayerInfo {
	players := make([]sharedtypes.PlayerInfo, len(names))
	for i, name := range names {
		players[i] = sharedtypes.PlayerInfo{
			Name:      name,
			Score:     g.faker.Number(0, 80),
			Kills:     g.faker.Number(0, 40),
			Deaths:    g.faker.Number(0, 30),
			Ping:      g.faker.Number(10, 250),
			TeamIndex: g.faker.Number(1, 2),
		}
	}
	return players
}

// GenerateServerGuid returns a random server identity.
func (g *TestDataGenerator) GenerateServerGuid() sharedtypes.ServerGuid {
	return sharedtypes.ServerGuid(g.faker.UUID())
}

// GenerateSnapshot assembles a full server snapshot for the given server and
// player set.
func (g *TestDataGenerator) GenerateSnapshot(guid sharedtypes.ServerGuid, game sharedtypes.Game, mapName string, players []sharedtypes.PlayerInfo) sharedtypes.ServerSnapshot {
	return sharedtypes.ServerSnapshot{
		Guid:       guid,
		Name:       fmt.Sprintf("%s Server", g.faker.City()),
		Address:    g.faker.IPv4Address(),
		Port:       g.faker.Number(14567, 14667),
		Game:       game,
		MapName:    mapName,
		GameType:   "conquest",
		MaxPlayers: 64,
		Tickets1:   g.faker.Number(50, 300),
		Tickets2:   g.faker.Number(50, 300),
		Team1Label: "Axis",
		Team2Label: "Allies",
		Players:    players,
	}
}
