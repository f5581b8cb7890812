package statsservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func queueClose(t *testing.T, svc *StatsService, player sharedtypes.PlayerName) {
	t.Helper()
	_, err := svc.HandleSessionClosed(context.Background(), sharedevents.SessionClosedPayload{
		SessionID:  1,
		Player:     player,
		ServerGuid: testGuid,
		MapName:    "berlin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStatsService_ProcessPending_EmptyQueueIsNoOp(t *testing.T) {
	repo := NewFakeStatsRepository()
	svc := newTestStatsService(repo)

	result, err := svc.ProcessPending(context.Background())
	summary := statsSuccess[*BatchSummary](t, result, err)

	if summary.Keys != 0 || summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(repo.Trace()) != 0 {
		t.Errorf("empty drain must not touch the store: %v", repo.Trace())
	}
}

func TestStatsService_ProcessPending_RecomputesDrainedKeys(t *testing.T) {
	repo := NewFakeStatsRepository()
	svc := newTestStatsService(repo)
	queueClose(t, svc, "hans")
	queueClose(t, svc, "erich")

	result, err := svc.ProcessPending(context.Background())
	summary := statsSuccess[*BatchSummary](t, result, err)

	if summary.Keys != 2 || summary.Failed != 0 || summary.Servers != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	trace := repo.Trace()
	for _, step := range []string{"RecomputeLifetime", "RecomputeServerStats", "RecomputeMapStats", "RecomputeServerMapPlayerStats", "RecomputeDailyStats"} {
		if countCalls(trace, step) != 2 {
			t.Errorf("expected %s per drained key, trace: %v", step, trace)
		}
	}
	if len(repo.MapStatServers) != 1 || repo.MapStatServers[0] != testGuid {
		t.Errorf("server map stats not refreshed once for the touched server: %v", repo.MapStatServers)
	}
	if len(repo.RankedServers) != 1 || repo.RankedServers[0] != testGuid {
		t.Errorf("rankings not refreshed once for the touched server: %v", repo.RankedServers)
	}
	if svc.QueueDepth() != 0 {
		t.Errorf("drain must empty the queue, got %d", svc.QueueDepth())
	}
}

func TestStatsService_ProcessPending_AwardsCrossedMilestone(t *testing.T) {
	repo := NewFakeStatsRepository()
	crossedAt := time.Date(2025, 6, 1, 18, 25, 0, 0, time.UTC)
	repo.Kills["hans"] = 4900
	repo.RecomputeLifetimeFunc = func(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
		repo.Kills[player] = 5100
		return nil
	}
	repo.SetCrossing("hans", 5000, testRound, crossedAt)
	svc := newTestStatsService(repo)
	queueClose(t, svc, "hans")

	result, err := svc.ProcessPending(context.Background())
	summary := statsSuccess[*BatchSummary](t, result, err)

	if summary.Milestones != 1 {
		t.Errorf("expected one milestone, got %+v", summary)
	}
	if len(repo.Milestones) != 1 {
		t.Fatalf("expected one stored milestone, got %d", len(repo.Milestones))
	}
	milestone := repo.Milestones[0]
	if milestone.PlayerName != "hans" || milestone.KillsThreshold != 5000 {
		t.Errorf("wrong milestone stored: %+v", milestone)
	}
	if milestone.RoundID != testRound || !milestone.AchievedAt.Equal(crossedAt) {
		t.Errorf("milestone must attribute the crossing round: %+v", milestone)
	}
}

func TestStatsService_ProcessPending_MilestoneReplayIsNoOp(t *testing.T) {
	repo := NewFakeStatsRepository()
	repo.Milestones = []statsdb.PlayerMilestone{{ID: 1, PlayerName: "hans", KillsThreshold: 5000}}
	repo.Kills["hans"] = 4900
	repo.RecomputeLifetimeFunc = func(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
		repo.Kills[player] = 5100
		return nil
	}
	svc := newTestStatsService(repo)
	queueClose(t, svc, "hans")

	result, err := svc.ProcessPending(context.Background())
	summary := statsSuccess[*BatchSummary](t, result, err)

	if summary.Milestones != 0 || len(repo.Milestones) != 1 {
		t.Errorf("replayed crossing must award nothing: %+v, milestones %d", summary, len(repo.Milestones))
	}
}

func TestStatsService_ProcessPending_FailedKeyIsRequeued(t *testing.T) {
	repo := NewFakeStatsRepository()
	repo.RecomputeLifetimeFunc = func(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
		if player == "erich" {
			return errors.New("deadlock detected")
		}
		return nil
	}
	svc := newTestStatsService(repo)
	queueClose(t, svc, "hans")
	queueClose(t, svc, "erich")

	result, err := svc.ProcessPending(context.Background())
	summary := statsSuccess[*BatchSummary](t, result, err)

	if summary.Keys != 2 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if svc.QueueDepth() != 1 {
		t.Fatalf("failed key must return to the queue, depth %d", svc.QueueDepth())
	}

	repo.RecomputeLifetimeFunc = nil
	result, err = svc.ProcessPending(context.Background())
	summary = statsSuccess[*BatchSummary](t, result, err)
	if summary.Keys != 1 || summary.Failed != 0 || svc.QueueDepth() != 0 {
		t.Errorf("requeued key must process on the next drain: %+v, depth %d", summary, svc.QueueDepth())
	}
}

func TestStatsService_ProcessPending_TracksRollingBestScores(t *testing.T) {
	repo := NewFakeStatsRepository()
	svc := newTestStatsService(repo)
	end := time.Now().UTC().Add(-time.Hour)

	if _, err := svc.HandleRoundCompleted(context.Background(), completionPayload(testRound, end,
		sharedtypes.RoundParticipant{Player: "hans", Score: 55, Kills: 20, Deaths: 8, PlayMinutes: 25},
	)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.BestScores) != 2 {
		t.Fatalf("expected week and month entries, got %d", len(repo.BestScores))
	}
	periods := map[sharedtypes.Period]bool{}
	for _, best := range repo.BestScores {
		periods[best.Period] = true
		if best.PlayerName != "hans" || best.Score != 55 || best.RoundID != testRound || !best.AchievedAt.Equal(end) {
			t.Errorf("unexpected best score row: %+v", best)
		}
	}
	if !periods[sharedtypes.PeriodWeek] || !periods[sharedtypes.PeriodMonth] {
		t.Errorf("expected one row per rolling period: %v", periods)
	}
}

func TestStatsService_ProcessPending_DisplacesRollingMinimum(t *testing.T) {
	repo := NewFakeStatsRepository()
	now := time.Now().UTC()
	seed := func(id int64, period sharedtypes.Period, score int, round sharedtypes.RoundID) {
		repo.BestScores = append(repo.BestScores, &statsdb.PlayerBestScore{
			ID: id, PlayerName: "hans", Period: period, Score: score,
			ServerGuid: testGuid, RoundID: round, AchievedAt: now.Add(-48 * time.Hour),
		})
	}
	seed(1, sharedtypes.PeriodWeek, 10, "r-a")
	seed(2, sharedtypes.PeriodWeek, 20, "r-b")
	seed(3, sharedtypes.PeriodWeek, 30, "r-c")
	seed(4, sharedtypes.PeriodMonth, 50, "r-a")
	seed(5, sharedtypes.PeriodMonth, 60, "r-b")
	seed(6, sharedtypes.PeriodMonth, 70, "r-c")
	repo.nextBestScoreID = 6
	svc := newTestStatsService(repo)

	if _, err := svc.HandleRoundCompleted(context.Background(), completionPayload(testRound, now.Add(-time.Hour),
		sharedtypes.RoundParticipant{Player: "hans", Score: 15},
	)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	week, _ := repo.ListBestScores(context.Background(), nil, "hans", sharedtypes.PeriodWeek)
	if len(week) != 3 || week[0].Score != 15 || week[1].Score != 20 || week[2].Score != 30 {
		t.Errorf("expected 15 to displace the weekly minimum: %+v", week)
	}
	month, _ := repo.ListBestScores(context.Background(), nil, "hans", sharedtypes.PeriodMonth)
	if len(month) != 3 || month[0].Score != 50 {
		t.Errorf("score below the monthly minimum must not enter: %+v", month)
	}
}

func TestStatsService_ProcessPending_SkipsBestScoresForOldCompletion(t *testing.T) {
	repo := NewFakeStatsRepository()
	svc := newTestStatsService(repo)
	end := time.Now().UTC().AddDate(0, 0, -40)

	if _, err := svc.HandleRoundCompleted(context.Background(), completionPayload(testRound, end,
		sharedtypes.RoundParticipant{Player: "hans", Score: 99},
	)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.ProcessPending(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.BestScores) != 0 {
		t.Errorf("a completion older than every window must not enter best scores: %+v", repo.BestScores)
	}
	if countCalls(repo.Trace(), "InsertBestScore") != 0 {
		t.Errorf("no insert attempts expected for an expired completion")
	}
}

func TestStatsService_RecomputeRound_RequeuesContributorsAndDrains(t *testing.T) {
	repo := NewFakeStatsRepository()
	repo.Contributors[testRound] = []statsdb.RoundContributor{
		{PlayerName: "hans", ServerGuid: testGuid},
		{PlayerName: "erich", ServerGuid: testGuid},
	}
	svc := newTestStatsService(repo)

	result, err := svc.RecomputeRound(context.Background(), testRound)
	summary := statsSuccess[*RoundRecomputeSummary](t, result, err)

	if summary.RoundID != testRound || summary.Players != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Batch == nil || summary.Batch.Keys != 2 {
		t.Errorf("recompute must drain immediately: %+v", summary.Batch)
	}
	if countCalls(repo.Trace(), "RecomputeLifetime") != 2 {
		t.Errorf("both contributors must recompute: %v", repo.Trace())
	}
	if svc.QueueDepth() != 0 {
		t.Errorf("queue must be empty after drain, got %d", svc.QueueDepth())
	}
}

func TestStatsService_RecomputeRound_UnknownRoundIsNoOp(t *testing.T) {
	repo := NewFakeStatsRepository()
	svc := newTestStatsService(repo)

	result, err := svc.RecomputeRound(context.Background(), "missing")
	summary := statsSuccess[*RoundRecomputeSummary](t, result, err)

	if summary.Players != 0 || summary.Batch != nil {
		t.Errorf("unknown round must schedule nothing: %+v", summary)
	}
	if countCalls(repo.Trace(), "RecomputeLifetime") != 0 {
		t.Errorf("unexpected recompute calls: %v", repo.Trace())
	}
}
