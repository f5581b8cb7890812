package roundservice

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// ------------------------
// Fake Round Repo
// ------------------------

// FakeRoundRepository is an in-memory, programmable stub for the
// rounddb.Repository interface. Default behavior keeps real state; the Func
// fields override individual methods for error injection.
type FakeRoundRepository struct {
	trace []string

	Rounds          map[sharedtypes.RoundID]*rounddb.Round
	Observations    []rounddb.RoundObservation
	Intervals       []rounddb.SessionInterval
	WindowIntervals []rounddb.WindowSessionInterval
	Identity        *rounddb.ServerIdentity

	ActiveRoundForServerFunc func(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*rounddb.Round, error)
	InsertRoundFunc          func(ctx context.Context, db bun.IDB, round *rounddb.Round) error
	CompleteRoundFunc        func(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, endTime time.Time, participantCount int) error
	SessionsOverlappingFunc  func(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]rounddb.SessionInterval, error)
	SessionsInWindowFunc     func(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, from, to time.Time) ([]rounddb.WindowSessionInterval, error)
}

// NewFakeRoundRepository initializes an empty fake.
func NewFakeRoundRepository() *FakeRoundRepository {
	return &FakeRoundRepository{
		trace:  []string{},
		Rounds: map[sharedtypes.RoundID]*rounddb.Round{},
	}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeRoundRepository) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeRoundRepository) record(step string) {
	f.trace = append(f.trace, step)
}

// ActiveRounds returns copies of every round still marked active.
func (f *FakeRoundRepository) ActiveRounds() []rounddb.Round {
	var out []rounddb.Round
	for _, round := range f.Rounds {
		if round.Active {
			out = append(out, *round)
		}
	}
	return out
}

// --- Repository Interface Implementation ---

func (f *FakeRoundRepository) GetRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID) (*rounddb.Round, error) {
	f.record("GetRound")
	round, ok := f.Rounds[id]
	if !ok {
		return nil, nil
	}
	copied := *round
	return &copied, nil
}

func (f *FakeRoundRepository) ActiveRoundForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*rounddb.Round, error) {
	f.record("ActiveRoundForServer")
	if f.ActiveRoundForServerFunc != nil {
		return f.ActiveRoundForServerFunc(ctx, db, guid)
	}
	for _, round := range f.Rounds {
		if round.Active && round.ServerGuid == guid {
			copied := *round
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeRoundRepository) InsertRound(ctx context.Context, db bun.IDB, round *rounddb.Round) error {
	f.record("InsertRound")
	if f.InsertRoundFunc != nil {
		return f.InsertRoundFunc(ctx, db, round)
	}
	if _, exists := f.Rounds[round.ID]; exists {
		return nil
	}
	copied := *round
	f.Rounds[round.ID] = &copied
	return nil
}

func (f *FakeRoundRepository) TouchRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, observedAt time.Time, tickets1, tickets2 int) error {
	f.record("TouchRound")
	if round, ok := f.Rounds[id]; ok && round.Active {
		round.LastObservationAt = observedAt
		round.Tickets1 = tickets1
		round.Tickets2 = tickets2
	}
	return nil
}

func (f *FakeRoundRepository) CompleteRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, endTime time.Time, participantCount int) error {
	f.record("CompleteRound")
	if f.CompleteRoundFunc != nil {
		return f.CompleteRoundFunc(ctx, db, id, endTime, participantCount)
	}
	if round, ok := f.Rounds[id]; ok {
		round.EndTime = endTime
		round.Active = false
		round.ParticipantCount = participantCount
	}
	return nil
}

func (f *FakeRoundRepository) SetRoundDeleted(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, deleted bool) (bool, error) {
	f.record("SetRoundDeleted")
	round, ok := f.Rounds[id]
	if !ok || round.Deleted == deleted {
		return false, nil
	}
	round.Deleted = deleted
	return true, nil
}

func (f *FakeRoundRepository) ListRecentRounds(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, limit int) ([]rounddb.Round, error) {
	f.record("ListRecentRounds")
	var out []rounddb.Round
	for _, round := range f.Rounds {
		if round.Deleted {
			continue
		}
		if guid != "" && round.ServerGuid != guid {
			continue
		}
		out = append(out, *round)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRoundRepository) InsertObservation(ctx context.Context, db bun.IDB, observation *rounddb.RoundObservation) error {
	f.record("InsertObservation")
	observation.ID = int64(len(f.Observations) + 1)
	f.Observations = append(f.Observations, *observation)
	return nil
}

func (f *FakeRoundRepository) SessionsOverlapping(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]rounddb.SessionInterval, error) {
	f.record("SessionsOverlapping")
	if f.SessionsOverlappingFunc != nil {
		return f.SessionsOverlappingFunc(ctx, db, guid, mapName, start, end)
	}
	return f.Intervals, nil
}

func (f *FakeRoundRepository) SessionsInWindow(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, from, to time.Time) ([]rounddb.WindowSessionInterval, error) {
	f.record("SessionsInWindow")
	if f.SessionsInWindowFunc != nil {
		return f.SessionsInWindowFunc(ctx, db, guid, from, to)
	}
	return f.WindowIntervals, nil
}

func (f *FakeRoundRepository) RoundsIntersecting(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]rounddb.Round, error) {
	f.record("RoundsIntersecting")
	var out []rounddb.Round
	for _, round := range f.Rounds {
		if round.ServerGuid != guid || round.MapName != mapName {
			continue
		}
		if round.StartTime.After(end) {
			continue
		}
		if !round.EndTime.IsZero() && round.EndTime.Before(start) {
			continue
		}
		out = append(out, *round)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *FakeRoundRepository) UpsertCompletedRound(ctx context.Context, db bun.IDB, round *rounddb.Round) error {
	f.record("UpsertCompletedRound")
	if existing, ok := f.Rounds[round.ID]; ok {
		existing.EndTime = round.EndTime
		existing.LastObservationAt = round.LastObservationAt
		existing.ParticipantCount = round.ParticipantCount
		existing.Active = false
		return nil
	}
	copied := *round
	f.Rounds[round.ID] = &copied
	return nil
}

func (f *FakeRoundRepository) ServerIdentity(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*rounddb.ServerIdentity, error) {
	f.record("ServerIdentity")
	return f.Identity, nil
}

// Ensure the fake actually satisfies the interface
var _ rounddb.Repository = (*FakeRoundRepository)(nil)

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
