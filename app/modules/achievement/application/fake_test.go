package achievementservice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"

	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// ------------------------
// Fake Achievement Repo
// ------------------------

// FakeAchievementRepository is an in-memory, programmable stub for the
// achievementdb.Repository interface. Default behavior keeps real state; the
// Func fields override individual methods for error injection.
type FakeAchievementRepository struct {
	trace []string

	Checkpoints  map[string]time.Time
	Rounds       []achievementdb.CompletedRound
	Participants map[sharedtypes.RoundID][]achievementdb.RoundParticipantStats
	Achievements []*achievementdb.PlayerAchievement

	CompletedRoundsSinceFunc   func(ctx context.Context, db bun.IDB, cursor time.Time, limit int) ([]achievementdb.CompletedRound, error)
	ParticipantsWithTotalsFunc func(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]achievementdb.RoundParticipantStats, error)
	InsertAchievementsFunc     func(ctx context.Context, db bun.IDB, rows []*achievementdb.PlayerAchievement) ([]string, error)
	SaveCheckpointFunc         func(ctx context.Context, db bun.IDB, name string, cursor time.Time) error
}

// NewFakeAchievementRepository initializes an empty fake.
func NewFakeAchievementRepository() *FakeAchievementRepository {
	return &FakeAchievementRepository{
		trace:        []string{},
		Checkpoints:  map[string]time.Time{},
		Participants: map[sharedtypes.RoundID][]achievementdb.RoundParticipantStats{},
	}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeAchievementRepository) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeAchievementRepository) record(step string) {
	f.trace = append(f.trace, step)
}

func achievementKey(row *achievementdb.PlayerAchievement) string {
	return fmt.Sprintf("%s|%s|%s", row.PlayerName, row.Code, row.RoundID)
}

// AddRound seeds one completed round and its participants.
func (f *FakeAchievementRepository) AddRound(round achievementdb.CompletedRound, participants ...achievementdb.RoundParticipantStats) {
	f.Rounds = append(f.Rounds, round)
	f.Participants[round.RoundID] = participants
}

// CodesFor lists the codes stored for a player, sorted.
func (f *FakeAchievementRepository) CodesFor(player sharedtypes.PlayerName) []string {
	var codes []string
	for _, row := range f.Achievements {
		if row.PlayerName == player {
			codes = append(codes, row.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// --- Repository Interface Implementation ---

func (f *FakeAchievementRepository) GetCheckpoint(ctx context.Context, db bun.IDB, name string) (time.Time, error) {
	f.record("GetCheckpoint")
	return f.Checkpoints[name], nil
}

func (f *FakeAchievementRepository) SaveCheckpoint(ctx context.Context, db bun.IDB, name string, cursor time.Time) error {
	f.record("SaveCheckpoint")
	if f.SaveCheckpointFunc != nil {
		return f.SaveCheckpointFunc(ctx, db, name, cursor)
	}
	f.Checkpoints[name] = cursor
	return nil
}

func (f *FakeAchievementRepository) CompletedRoundsSince(ctx context.Context, db bun.IDB, cursor time.Time, limit int) ([]achievementdb.CompletedRound, error) {
	f.record("CompletedRoundsSince")
	if f.CompletedRoundsSinceFunc != nil {
		return f.CompletedRoundsSinceFunc(ctx, db, cursor, limit)
	}
	var matched []achievementdb.CompletedRound
	for _, round := range f.Rounds {
		if !round.EndTime.Before(cursor) {
			matched = append(matched, round)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].EndTime.Equal(matched[j].EndTime) {
			return matched[i].RoundID < matched[j].RoundID
		}
		return matched[i].EndTime.Before(matched[j].EndTime)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *FakeAchievementRepository) ParticipantsWithTotals(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]achievementdb.RoundParticipantStats, error) {
	f.record("ParticipantsWithTotals")
	if f.ParticipantsWithTotalsFunc != nil {
		return f.ParticipantsWithTotalsFunc(ctx, db, roundID)
	}
	out := make([]achievementdb.RoundParticipantStats, len(f.Participants[roundID]))
	copy(out, f.Participants[roundID])
	return out, nil
}

func (f *FakeAchievementRepository) InsertAchievements(ctx context.Context, db bun.IDB, rows []*achievementdb.PlayerAchievement) ([]string, error) {
	f.record("InsertAchievements")
	if f.InsertAchievementsFunc != nil {
		return f.InsertAchievementsFunc(ctx, db, rows)
	}
	existing := map[string]bool{}
	for _, row := range f.Achievements {
		existing[achievementKey(row)] = true
	}
	var inserted []string
	for _, row := range rows {
		key := achievementKey(row)
		if existing[key] {
			continue
		}
		existing[key] = true
		copied := *row
		copied.ID = int64(len(f.Achievements) + 1)
		f.Achievements = append(f.Achievements, &copied)
		inserted = append(inserted, row.Code)
	}
	return inserted, nil
}

// Ensure the fake satisfies the repository interface.
var _ achievementdb.Repository = (*FakeAchievementRepository)(nil)

func countCalls(trace []string, step string) int {
	count := 0
	for _, s := range trace {
		if s == step {
			count++
		}
	}
	return count
}
