package statsservice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// ------------------------
// Fake Stats Repo
// ------------------------

// FakeStatsRepository is an in-memory, programmable stub for the
// statsdb.Repository interface. Default behavior keeps real state; the Func
// fields override individual methods for error injection and state shaping.
type FakeStatsRepository struct {
	trace []string

	Contributions map[string]*statsdb.PlayerRoundStats
	Kills         map[sharedtypes.PlayerName]int
	Lifetime      map[sharedtypes.PlayerName]*statsdb.PlayerStatsLifetime
	Milestones    []statsdb.PlayerMilestone
	Crossings     map[sharedtypes.PlayerName]map[int]*statsdb.MilestoneCrossing
	BestScores    []*statsdb.PlayerBestScore
	Contributors  map[sharedtypes.RoundID][]statsdb.RoundContributor
	WindowPlayers []sharedtypes.PlayerName
	WindowServers []sharedtypes.ServerGuid
	Batches       map[string]map[int]int
	Daily         map[sharedtypes.PlayerName][]statsdb.PlayerDailyStats
	Rankings      map[sharedtypes.ServerGuid][]statsdb.ServerPlayerRanking

	MapStatServers []sharedtypes.ServerGuid
	RankedServers  []sharedtypes.ServerGuid

	nextBestScoreID int64

	UpsertRoundContributionsFunc       func(ctx context.Context, db bun.IDB, rows []*statsdb.PlayerRoundStats) error
	RebuildContributionsForPlayersFunc func(ctx context.Context, db bun.IDB, players []sharedtypes.PlayerName, from, to time.Time) (int64, error)
	LifetimeKillsFunc                  func(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (int, error)
	RecomputeLifetimeFunc              func(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error
	RecomputeServerRankingsFunc        func(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid) error
}

// NewFakeStatsRepository initializes an empty fake.
func NewFakeStatsRepository() *FakeStatsRepository {
	return &FakeStatsRepository{
		trace:         []string{},
		Contributions: map[string]*statsdb.PlayerRoundStats{},
		Kills:         map[sharedtypes.PlayerName]int{},
		Lifetime:      map[sharedtypes.PlayerName]*statsdb.PlayerStatsLifetime{},
		Crossings:     map[sharedtypes.PlayerName]map[int]*statsdb.MilestoneCrossing{},
		Contributors:  map[sharedtypes.RoundID][]statsdb.RoundContributor{},
		Batches:       map[string]map[int]int{},
		Daily:         map[sharedtypes.PlayerName][]statsdb.PlayerDailyStats{},
		Rankings:      map[sharedtypes.ServerGuid][]statsdb.ServerPlayerRanking{},
	}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeStatsRepository) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeStatsRepository) record(step string) {
	f.trace = append(f.trace, step)
}

func contributionKey(player sharedtypes.PlayerName, roundID sharedtypes.RoundID) string {
	return fmt.Sprintf("%s|%s", player, roundID)
}

// SetCrossing programs the attribution answer for one player and threshold.
func (f *FakeStatsRepository) SetCrossing(player sharedtypes.PlayerName, threshold int, roundID sharedtypes.RoundID, at time.Time) {
	if f.Crossings[player] == nil {
		f.Crossings[player] = map[int]*statsdb.MilestoneCrossing{}
	}
	f.Crossings[player][threshold] = &statsdb.MilestoneCrossing{RoundID: roundID, AchievedAt: at}
}

// --- Repository Interface Implementation ---

func (f *FakeStatsRepository) UpsertRoundContributions(ctx context.Context, db bun.IDB, rows []*statsdb.PlayerRoundStats) error {
	f.record("UpsertRoundContributions")
	if f.UpsertRoundContributionsFunc != nil {
		return f.UpsertRoundContributionsFunc(ctx, db, rows)
	}
	for _, row := range rows {
		copied := *row
		f.Contributions[contributionKey(row.PlayerName, row.RoundID)] = &copied
	}
	return nil
}

func (f *FakeStatsRepository) RebuildContributionsForPlayers(ctx context.Context, db bun.IDB, players []sharedtypes.PlayerName, from, to time.Time) (int64, error) {
	f.record("RebuildContributionsForPlayers")
	if f.RebuildContributionsForPlayersFunc != nil {
		return f.RebuildContributionsForPlayersFunc(ctx, db, players, from, to)
	}
	return int64(len(players)), nil
}

func (f *FakeStatsRepository) RoundContributors(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]statsdb.RoundContributor, error) {
	f.record("RoundContributors")
	out := make([]statsdb.RoundContributor, len(f.Contributors[roundID]))
	copy(out, f.Contributors[roundID])
	return out, nil
}

func (f *FakeStatsRepository) LifetimeKills(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (int, error) {
	f.record("LifetimeKills")
	if f.LifetimeKillsFunc != nil {
		return f.LifetimeKillsFunc(ctx, db, player)
	}
	return f.Kills[player], nil
}

func (f *FakeStatsRepository) RecomputeLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RecomputeLifetime")
	if f.RecomputeLifetimeFunc != nil {
		return f.RecomputeLifetimeFunc(ctx, db, player)
	}
	return nil
}

func (f *FakeStatsRepository) RecomputeServerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RecomputeServerStats")
	return nil
}

func (f *FakeStatsRepository) RecomputeMapStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RecomputeMapStats")
	return nil
}

func (f *FakeStatsRepository) RecomputeServerMapPlayerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RecomputeServerMapPlayerStats")
	return nil
}

func (f *FakeStatsRepository) RecomputeDailyStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RecomputeDailyStats")
	return nil
}

func (f *FakeStatsRepository) FindMilestoneCrossing(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, threshold int) (*statsdb.MilestoneCrossing, error) {
	f.record("FindMilestoneCrossing")
	if byThreshold, ok := f.Crossings[player]; ok {
		if crossing, ok := byThreshold[threshold]; ok {
			copied := *crossing
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *FakeStatsRepository) InsertMilestone(ctx context.Context, db bun.IDB, milestone *statsdb.PlayerMilestone) (bool, error) {
	f.record("InsertMilestone")
	for _, existing := range f.Milestones {
		if existing.PlayerName == milestone.PlayerName && existing.KillsThreshold == milestone.KillsThreshold {
			return false, nil
		}
	}
	copied := *milestone
	copied.ID = int64(len(f.Milestones) + 1)
	f.Milestones = append(f.Milestones, copied)
	return true, nil
}

func (f *FakeStatsRepository) ListBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period) ([]statsdb.PlayerBestScore, error) {
	f.record("ListBestScores")
	var out []statsdb.PlayerBestScore
	for _, best := range f.BestScores {
		if best.PlayerName == player && best.Period == period {
			out = append(out, *best)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].AchievedAt.Before(out[j].AchievedAt)
	})
	return out, nil
}

func (f *FakeStatsRepository) InsertBestScore(ctx context.Context, db bun.IDB, best *statsdb.PlayerBestScore) (bool, error) {
	f.record("InsertBestScore")
	for _, existing := range f.BestScores {
		if existing.PlayerName == best.PlayerName && existing.Period == best.Period && existing.RoundID == best.RoundID {
			return false, nil
		}
	}
	copied := *best
	f.nextBestScoreID++
	copied.ID = f.nextBestScoreID
	f.BestScores = append(f.BestScores, &copied)
	return true, nil
}

func (f *FakeStatsRepository) DeleteBestScore(ctx context.Context, db bun.IDB, id int64) error {
	f.record("DeleteBestScore")
	for i, best := range f.BestScores {
		if best.ID == id {
			f.BestScores = append(f.BestScores[:i], f.BestScores[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *FakeStatsRepository) PruneExpiredBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period, cutoff time.Time) error {
	f.record("PruneExpiredBestScores")
	kept := f.BestScores[:0]
	for _, best := range f.BestScores {
		if best.PlayerName == player && best.Period == period && best.AchievedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, best)
	}
	f.BestScores = kept
	return nil
}

func (f *FakeStatsRepository) PruneDeletedBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("PruneDeletedBestScores")
	return nil
}

func (f *FakeStatsRepository) RebuildAllTimeBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	f.record("RebuildAllTimeBestScores")
	return nil
}

func (f *FakeStatsRepository) RecomputeServerMapStats(ctx context.Context, db bun.IDB, servers []sharedtypes.ServerGuid) error {
	f.record("RecomputeServerMapStats")
	f.MapStatServers = append(f.MapStatServers, servers...)
	return nil
}

func (f *FakeStatsRepository) RecomputeServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid) error {
	f.record("RecomputeServerRankings")
	if f.RecomputeServerRankingsFunc != nil {
		return f.RecomputeServerRankingsFunc(ctx, db, server)
	}
	f.RankedServers = append(f.RankedServers, server)
	return nil
}

func (f *FakeStatsRepository) DistinctPlayersByRecency(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.PlayerName, error) {
	f.record("DistinctPlayersByRecency")
	out := make([]sharedtypes.PlayerName, len(f.WindowPlayers))
	copy(out, f.WindowPlayers)
	return out, nil
}

func (f *FakeStatsRepository) ServersInWindow(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.ServerGuid, error) {
	f.record("ServersInWindow")
	out := make([]sharedtypes.ServerGuid, len(f.WindowServers))
	copy(out, f.WindowServers)
	return out, nil
}

func (f *FakeStatsRepository) HasBackfillBatch(ctx context.Context, db bun.IDB, runKey string, batchIndex int) (bool, error) {
	f.record("HasBackfillBatch")
	_, ok := f.Batches[runKey][batchIndex]
	return ok, nil
}

func (f *FakeStatsRepository) RecordBackfillBatch(ctx context.Context, db bun.IDB, batch *statsdb.BackfillBatch) error {
	f.record("RecordBackfillBatch")
	if f.Batches[batch.RunKey] == nil {
		f.Batches[batch.RunKey] = map[int]int{}
	}
	f.Batches[batch.RunKey][batch.BatchIndex] = batch.Players
	return nil
}

func (f *FakeStatsRepository) DailyStatsSince(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, since time.Time) ([]statsdb.PlayerDailyStats, error) {
	f.record("DailyStatsSince")
	var out []statsdb.PlayerDailyStats
	for _, day := range f.Daily[player] {
		if day.Day.Before(since) {
			continue
		}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (f *FakeStatsRepository) ServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid, limit int) ([]statsdb.ServerPlayerRanking, error) {
	f.record("ServerRankings")
	rankings := f.Rankings[server]
	out := make([]statsdb.ServerPlayerRanking, len(rankings))
	copy(out, rankings)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeStatsRepository) GetLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (*statsdb.PlayerStatsLifetime, error) {
	f.record("GetLifetime")
	lifetime, ok := f.Lifetime[player]
	if !ok {
		return nil, nil
	}
	copied := *lifetime
	return &copied, nil
}

// Ensure the fake actually satisfies the interface
var _ statsdb.Repository = (*FakeStatsRepository)(nil)

// countCalls returns how many times step appears in a trace.
func countCalls(trace []string, step string) int {
	n := 0
	for _, s := range trace {
		if s == step {
			n++
		}
	}
	return n
}
