package statsintegrationtests

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func TestRoundCompletionUpdatesAggregates(t *testing.T) {
	deps := SetupTestStatsService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(2)
	start := time.Date(2025, 5, 12, 19, 0, 0, 0, time.UTC)
	end := start.Add(20 * time.Minute)
	roundID := sharedtypes.DeriveRoundID(guid, "berlin", start)

	seedCompletedRound(t, deps, roundID, guid, "berlin", start, end)

	payload := completionFor(roundID, guid, "berlin", start, end, []sharedtypes.RoundParticipant{
		{Player: names[0], Score: 50, Kills: 20, Deaths: 10, PlayMinutes: 20},
		{Player: names[1], Score: 30, Kills: 12, Deaths: 15, PlayMinutes: 18},
	})

	result, err := deps.Service.HandleRoundCompleted(ctx, payload)
	if err != nil {
		t.Fatalf("HandleRoundCompleted failed: %v", err)
	}
	applied, ok := result.Success.(*statsservice.RoundAppliedSummary)
	if !ok {
		t.Fatalf("Unexpected success payload type %T", result.Success)
	}
	if applied.Players != 2 {
		t.Errorf("Expected 2 stored contributions, got %d", applied.Players)
	}
	if depth := deps.Service.QueueDepth(); depth != 2 {
		t.Errorf("Expected 2 queued keys, got %d", depth)
	}

	summary := drain(t, deps)
	if summary.Keys != 2 {
		t.Errorf("Expected 2 drained keys, got %d", summary.Keys)
	}
	if summary.Servers != 1 {
		t.Errorf("Expected 1 server rollup, got %d", summary.Servers)
	}

	lifetime, err := deps.Repo.GetLifetime(ctx, nil, names[0])
	if err != nil {
		t.Fatalf("GetLifetime failed: %v", err)
	}
	if lifetime == nil {
		t.Fatalf("Expected lifetime row for %s", names[0])
	}
	if lifetime.TotalKills != 20 || lifetime.TotalDeaths != 10 || lifetime.TotalScore != 50 {
		t.Errorf("Unexpected lifetime totals: kills=%d deaths=%d score=%d",
			lifetime.TotalKills, lifetime.TotalDeaths, lifetime.TotalScore)
	}
	if lifetime.RoundsPlayed != 1 {
		t.Errorf("Expected 1 round played, got %d", lifetime.RoundsPlayed)
	}
	if lifetime.KDRatio < 1.99 || lifetime.KDRatio > 2.01 {
		t.Errorf("Expected K/D ratio near 2.0, got %f", lifetime.KDRatio)
	}
	if !lifetime.LastRoundAt.Equal(end) {
		t.Errorf("Expected last round at %v, got %v", end, lifetime.LastRoundAt)
	}

	rankings, err := deps.Repo.ServerRankings(ctx, nil, guid, 10)
	if err != nil {
		t.Fatalf("ServerRankings failed: %v", err)
	}
	if len(rankings) != 2 {
		t.Fatalf("Expected 2 ranking rows, got %d", len(rankings))
	}
	if rankings[0].PlayerName != names[0] || rankings[0].Rank != 1 || rankings[0].Score != 50 {
		t.Errorf("Unexpected top ranking: %+v", rankings[0])
	}
	if rankings[1].PlayerName != names[1] || rankings[1].Rank != 2 {
		t.Errorf("Unexpected second ranking: %+v", rankings[1])
	}

	daily, err := deps.Repo.DailyStatsSince(ctx, nil, names[0], start.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DailyStatsSince failed: %v", err)
	}
	if len(daily) != 1 {
		t.Fatalf("Expected 1 daily row, got %d", len(daily))
	}
	if daily[0].Kills != 20 || daily[0].RoundsPlayed != 1 {
		t.Errorf("Unexpected daily row: kills=%d rounds=%d", daily[0].Kills, daily[0].RoundsPlayed)
	}
}

func TestRoundCompletionReplayDoesNotDoubleCount(t *testing.T) {
	deps := SetupTestStatsService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	name := deps.Gen.GeneratePlayerName()
	start := time.Date(2025, 5, 13, 20, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)
	roundID := sharedtypes.DeriveRoundID(guid, "stalingrad", start)

	seedCompletedRound(t, deps, roundID, guid, "stalingrad", start, end)

	payload := completionFor(roundID, guid, "stalingrad", start, end, []sharedtypes.RoundParticipant{
		{Player: name, Score: 42, Kills: 17, Deaths: 6, PlayMinutes: 25},
	})

	if _, err := deps.Service.HandleRoundCompleted(ctx, payload); err != nil {
		t.Fatalf("First HandleRoundCompleted failed: %v", err)
	}
	drain(t, deps)

	first, err := deps.Repo.GetLifetime(ctx, nil, name)
	if err != nil {
		t.Fatalf("GetLifetime failed: %v", err)
	}
	if first == nil {
		t.Fatal("Expected lifetime row after first drain")
	}

	// Same completion delivered again, as a broker redelivery would.
	if _, err := deps.Service.HandleRoundCompleted(ctx, payload); err != nil {
		t.Fatalf("Replayed HandleRoundCompleted failed: %v", err)
	}
	drain(t, deps)

	second, err := deps.Repo.GetLifetime(ctx, nil, name)
	if err != nil {
		t.Fatalf("GetLifetime after replay failed: %v", err)
	}

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(statsdb.PlayerStatsLifetime{}, "UpdatedAt")); diff != "" {
		t.Errorf("Lifetime row changed after replay (-first +second):\n%s", diff)
	}
	if second.RoundsPlayed != 1 {
		t.Errorf("Expected rounds played to stay 1, got %d", second.RoundsPlayed)
	}
}

func TestQueueDeduplicatesPendingKeys(t *testing.T) {
	deps := SetupTestStatsService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(2)
	start := time.Date(2025, 5, 14, 18, 0, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)
	roundID := sharedtypes.DeriveRoundID(guid, "kursk", start)

	seedCompletedRound(t, deps, roundID, guid, "kursk", start, end)

	payload := completionFor(roundID, guid, "kursk", start, end, []sharedtypes.RoundParticipant{
		{Player: names[0], Score: 12, Kills: 5, Deaths: 3, PlayMinutes: 15},
	})
	if _, err := deps.Service.HandleRoundCompleted(ctx, payload); err != nil {
		t.Fatalf("HandleRoundCompleted failed: %v", err)
	}
	if depth := deps.Service.QueueDepth(); depth != 1 {
		t.Fatalf("Expected 1 queued key, got %d", depth)
	}

	// A session close for the same player and server collapses into the
	// already-pending key.
	closed := sharedevents.SessionClosedPayload{
		Player:     names[0],
		ServerGuid: guid,
		MapName:    "kursk",
		Reason:     sharedtypes.CloseReasonTimeout,
	}
	if _, err := deps.Service.HandleSessionClosed(ctx, closed); err != nil {
		t.Fatalf("HandleSessionClosed failed: %v", err)
	}
	if depth := deps.Service.QueueDepth(); depth != 1 {
		t.Errorf("Expected duplicate trigger to collapse, queue depth is %d", depth)
	}

	closed.Player = names[1]
	if _, err := deps.Service.HandleSessionClosed(ctx, closed); err != nil {
		t.Fatalf("HandleSessionClosed for second player failed: %v", err)
	}
	if depth := deps.Service.QueueDepth(); depth != 2 {
		t.Errorf("Expected distinct player to queue its own key, depth is %d", depth)
	}

	summary := drain(t, deps)
	if summary.Keys != 2 {
		t.Errorf("Expected 2 drained keys, got %d", summary.Keys)
	}
	if depth := deps.Service.QueueDepth(); depth != 0 {
		t.Errorf("Expected empty queue after drain, depth is %d", depth)
	}
}
