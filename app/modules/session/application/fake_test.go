package sessionservice

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// ------------------------
// Fake Session Repo
// ------------------------

// FakeSessionRepository is an in-memory, programmable stub for the
// sessiondb.Repository interface. Default behavior keeps real state so flow
// tests can ingest several snapshots in sequence; the Func fields override
// individual methods for error injection.
type FakeSessionRepository struct {
	trace []string

	Servers       map[sharedtypes.ServerGuid]*sessiondb.GameServer
	Players       map[sharedtypes.PlayerName]*sessiondb.Player
	Sessions      map[sharedtypes.SessionID]*sessiondb.PlayerSession
	Observations  []sessiondb.PlayerObservation
	nextSessionID sharedtypes.SessionID

	GetServerFunc               func(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*sessiondb.GameServer, error)
	UpsertServerFunc            func(ctx context.Context, db bun.IDB, server *sessiondb.GameServer) error
	UpsertPlayerFunc            func(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, seenAt time.Time, bot bool) error
	AddPlayMinutesFunc          func(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, minutes float64) error
	InsertSessionFunc           func(ctx context.Context, db bun.IDB, session *sessiondb.PlayerSession) error
	CloseSessionsFunc           func(ctx context.Context, db bun.IDB, ids []sharedtypes.SessionID) error
	CloseTimedOutSessionsFunc   func(ctx context.Context, db bun.IDB, cutoff time.Time) ([]sessiondb.PlayerSession, error)
	InsertObservationFunc       func(ctx context.Context, db bun.IDB, observation *sessiondb.PlayerObservation) error
	ActiveSessionsForServerFunc func(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) ([]sessiondb.PlayerSession, error)
}

// NewFakeSessionRepository initializes an empty fake.
func NewFakeSessionRepository() *FakeSessionRepository {
	return &FakeSessionRepository{
		trace:    []string{},
		Servers:  map[sharedtypes.ServerGuid]*sessiondb.GameServer{},
		Players:  map[sharedtypes.PlayerName]*sessiondb.Player{},
		Sessions: map[sharedtypes.SessionID]*sessiondb.PlayerSession{},
	}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeSessionRepository) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeSessionRepository) record(step string) {
	f.trace = append(f.trace, step)
}

// ActiveSessions returns copies of every session still marked active.
func (f *FakeSessionRepository) ActiveSessions() []sessiondb.PlayerSession {
	var out []sessiondb.PlayerSession
	for _, sess := range f.Sessions {
		if sess.Active {
			out = append(out, *sess)
		}
	}
	return out
}

// SessionsFor returns copies of every session for a player, any state.
func (f *FakeSessionRepository) SessionsFor(name sharedtypes.PlayerName) []sessiondb.PlayerSession {
	var out []sessiondb.PlayerSession
	for _, sess := range f.Sessions {
		if sess.PlayerName == name {
			out = append(out, *sess)
		}
	}
	return out
}

// --- Repository Interface Implementation ---

func (f *FakeSessionRepository) GetServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*sessiondb.GameServer, error) {
	f.record("GetServer")
	if f.GetServerFunc != nil {
		return f.GetServerFunc(ctx, db, guid)
	}
	server, ok := f.Servers[guid]
	if !ok {
		return nil, nil
	}
	copied := *server
	return &copied, nil
}

func (f *FakeSessionRepository) UpsertServer(ctx context.Context, db bun.IDB, server *sessiondb.GameServer) error {
	f.record("UpsertServer")
	if f.UpsertServerFunc != nil {
		return f.UpsertServerFunc(ctx, db, server)
	}
	copied := *server
	if prev, ok := f.Servers[server.Guid]; ok {
		copied.Country = prev.Country
		copied.Region = prev.Region
		copied.City = prev.City
		copied.Latitude = prev.Latitude
		copied.Longitude = prev.Longitude
	}
	f.Servers[server.Guid] = &copied
	return nil
}

func (f *FakeSessionRepository) UpdateServerGeo(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, geo sessiondb.ServerGeo) error {
	f.record("UpdateServerGeo")
	if server, ok := f.Servers[guid]; ok {
		server.Country = geo.Country
		server.Region = geo.Region
		server.City = geo.City
		server.Latitude = geo.Latitude
		server.Longitude = geo.Longitude
	}
	return nil
}

func (f *FakeSessionRepository) ListServers(ctx context.Context, db bun.IDB) ([]sessiondb.GameServer, error) {
	f.record("ListServers")
	var out []sessiondb.GameServer
	for _, server := range f.Servers {
		out = append(out, *server)
	}
	return out, nil
}

func (f *FakeSessionRepository) UpsertPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, seenAt time.Time, bot bool) error {
	f.record("UpsertPlayer")
	if f.UpsertPlayerFunc != nil {
		return f.UpsertPlayerFunc(ctx, db, name, seenAt, bot)
	}
	if player, ok := f.Players[name]; ok {
		player.LastSeen = seenAt
		player.Bot = bot
		return nil
	}
	f.Players[name] = &sessiondb.Player{Name: name, FirstSeen: seenAt, LastSeen: seenAt, Bot: bot}
	return nil
}

func (f *FakeSessionRepository) AddPlayMinutes(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, minutes float64) error {
	f.record("AddPlayMinutes")
	if f.AddPlayMinutesFunc != nil {
		return f.AddPlayMinutesFunc(ctx, db, name, minutes)
	}
	if minutes <= 0 {
		return nil
	}
	if player, ok := f.Players[name]; ok {
		player.TotalPlayMinutes += minutes
	}
	return nil
}

func (f *FakeSessionRepository) GetPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName) (*sessiondb.Player, error) {
	f.record("GetPlayer")
	player, ok := f.Players[name]
	if !ok {
		return nil, nil
	}
	copied := *player
	return &copied, nil
}

func (f *FakeSessionRepository) ActiveSessionsForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) ([]sessiondb.PlayerSession, error) {
	f.record("ActiveSessionsForServer")
	if f.ActiveSessionsForServerFunc != nil {
		return f.ActiveSessionsForServerFunc(ctx, db, guid)
	}
	var out []sessiondb.PlayerSession
	for _, sess := range f.Sessions {
		if sess.Active && sess.ServerGuid == guid {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (f *FakeSessionRepository) InsertSession(ctx context.Context, db bun.IDB, session *sessiondb.PlayerSession) error {
	f.record("InsertSession")
	if f.InsertSessionFunc != nil {
		return f.InsertSessionFunc(ctx, db, session)
	}
	f.nextSessionID++
	session.ID = f.nextSessionID
	copied := *session
	f.Sessions[session.ID] = &copied
	return nil
}

func (f *FakeSessionRepository) UpdateSessionProgress(ctx context.Context, db bun.IDB, session *sessiondb.PlayerSession) error {
	f.record("UpdateSessionProgress")
	if stored, ok := f.Sessions[session.ID]; ok {
		stored.LastSeenTime = session.LastSeenTime
		stored.ObservationCount = session.ObservationCount
		stored.TotalScore = session.TotalScore
		stored.TotalKills = session.TotalKills
		stored.TotalDeaths = session.TotalDeaths
	}
	return nil
}

func (f *FakeSessionRepository) CloseSessions(ctx context.Context, db bun.IDB, ids []sharedtypes.SessionID) error {
	f.record("CloseSessions")
	if f.CloseSessionsFunc != nil {
		return f.CloseSessionsFunc(ctx, db, ids)
	}
	for _, id := range ids {
		if sess, ok := f.Sessions[id]; ok {
			sess.Active = false
		}
	}
	return nil
}

func (f *FakeSessionRepository) CloseTimedOutSessions(ctx context.Context, db bun.IDB, cutoff time.Time) ([]sessiondb.PlayerSession, error) {
	f.record("CloseTimedOutSessions")
	if f.CloseTimedOutSessionsFunc != nil {
		return f.CloseTimedOutSessionsFunc(ctx, db, cutoff)
	}
	var closed []sessiondb.PlayerSession
	for _, sess := range f.Sessions {
		if sess.Active && sess.LastSeenTime.Before(cutoff) {
			sess.Active = false
			closed = append(closed, *sess)
		}
	}
	return closed, nil
}

func (f *FakeSessionRepository) InsertObservation(ctx context.Context, db bun.IDB, observation *sessiondb.PlayerObservation) error {
	f.record("InsertObservation")
	if f.InsertObservationFunc != nil {
		return f.InsertObservationFunc(ctx, db, observation)
	}
	observation.ID = int64(len(f.Observations) + 1)
	f.Observations = append(f.Observations, *observation)
	return nil
}

// Ensure the fake actually satisfies the interface
var _ sessiondb.Repository = (*FakeSessionRepository)(nil)

// ------------------------
// Fake Event Bus
// ------------------------

// FakeEventBus captures published messages per topic.
type FakeEventBus struct {
	Published map[string][]*message.Message
}

func NewFakeEventBus() *FakeEventBus {
	return &FakeEventBus{Published: map[string][]*message.Message{}}
}

func (f *FakeEventBus) Publish(topic string, messages ...*message.Message) error {
	f.Published[topic] = append(f.Published[topic], messages...)
	return nil
}

func (f *FakeEventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (f *FakeEventBus) CreateStream(ctx context.Context, streamName string, subjects ...string) error {
	return nil
}

func (f *FakeEventBus) Close() error { return nil }

// decodePayload unmarshals the latest message on a topic into target.
func decodePayload(t *testing.T, bus *FakeEventBus, topic string, target any) {
	t.Helper()
	msgs := bus.Published[topic]
	if len(msgs) == 0 {
		t.Fatalf("no messages published on %s", topic)
	}
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, target); err != nil {
		t.Fatalf("failed to decode %s payload: %v", topic, err)
	}
}
