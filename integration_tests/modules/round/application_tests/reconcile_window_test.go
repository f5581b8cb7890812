package roundintegrationtests

import (
	"testing"
	"time"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func seedServer(t *testing.T, deps *TestDeps, guid sharedtypes.ServerGuid, name string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	if err := deps.SessionRepo.UpsertServer(deps.Env.Ctx, nil, &sessiondb.GameServer{
		Guid:      guid,
		Name:      name,
		Address:   "192.0.2.10",
		Port:      14567,
		Game:      sharedtypes.GameBF1942,
		FirstSeen: now,
		LastSeen:  now,
	}); err != nil {
		t.Fatalf("UpsertServer failed: %v", err)
	}
}

func reconcileWindow(t *testing.T, deps *TestDeps, guid sharedtypes.ServerGuid, from, to time.Time) *roundservice.ReconcileSummary {
	t.Helper()
	result, err := deps.Service.ReconcileWindow(deps.Env.Ctx, guid, from, to)
	if err != nil {
		t.Fatalf("ReconcileWindow failed: %v", err)
	}
	summary, ok := result.Success.(*roundservice.ReconcileSummary)
	if !ok {
		t.Fatalf("unexpected result payload: %+v", result)
	}
	return summary
}

func countRounds(t *testing.T, deps *TestDeps) int {
	t.Helper()
	count, err := deps.Env.DB.NewSelect().Model((*rounddb.Round)(nil)).Count(deps.Env.Ctx)
	if err != nil {
		t.Fatalf("failed to count rounds: %v", err)
	}
	return count
}

func TestReconcileWindowMaterializesRoundsFromSessions(t *testing.T) {
	deps := SetupTestRoundService(t)
	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(2)
	seedServer(t, deps, guid, "Reconcile Test Server")

	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	groupAEnd := t0.Add(20 * time.Minute)
	// Next activity on the same map starts 700 seconds later, past the gap
	// threshold, so it forms a second round.
	t1 := groupAEnd.Add(700 * time.Second)

	seedSessionInterval(t, deps, guid, "berlin", names[0], t0, groupAEnd, 55, 20, 8)
	seedSessionInterval(t, deps, guid, "berlin", names[1], t0.Add(2*time.Minute), t0.Add(18*time.Minute), 21, 7, 11)
	seedSessionInterval(t, deps, guid, "berlin", names[0], t1, t1.Add(15*time.Minute), 30, 12, 4)

	summary := reconcileWindow(t, deps, guid, t0.Add(-time.Hour), t0.Add(3*time.Hour))
	if summary.Groups != 2 || summary.Upserted != 2 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	first, err := deps.Repo.GetRound(deps.Env.Ctx, nil, sharedtypes.DeriveRoundID(guid, "berlin", t0))
	if err != nil || first == nil {
		t.Fatalf("first round not materialized: %v %+v", err, first)
	}
	if first.Active || !first.EndTime.Equal(groupAEnd) || first.ParticipantCount != 2 {
		t.Errorf("first round stored incorrectly: %+v", first)
	}
	if first.ServerName != "Reconcile Test Server" || first.Game != sharedtypes.GameBF1942 {
		t.Errorf("server identity not applied: %+v", first)
	}

	second, err := deps.Repo.GetRound(deps.Env.Ctx, nil, sharedtypes.DeriveRoundID(guid, "berlin", t1))
	if err != nil || second == nil {
		t.Fatalf("second round not materialized: %v %+v", err, second)
	}
	if second.Active || second.ParticipantCount != 1 {
		t.Errorf("second round stored incorrectly: %+v", second)
	}
}

func TestReconcileWindowRerunUpsertsSameRows(t *testing.T) {
	deps := SetupTestRoundService(t)
	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(1)
	seedServer(t, deps, guid, "Reconcile Test Server")

	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	seedSessionInterval(t, deps, guid, "berlin", names[0], t0, t0.Add(20*time.Minute), 40, 15, 6)

	from, to := t0.Add(-time.Hour), t0.Add(time.Hour)
	first := reconcileWindow(t, deps, guid, from, to)
	if first.Upserted != 1 {
		t.Fatalf("unexpected first pass: %+v", first)
	}

	second := reconcileWindow(t, deps, guid, from, to)
	if second.Upserted != 1 {
		t.Errorf("rerun must upsert the same round: %+v", second)
	}
	if got := countRounds(t, deps); got != 1 {
		t.Errorf("rerun must not create duplicate rounds, got %d", got)
	}
}

func TestReconcileWindowSkipsFormingGroups(t *testing.T) {
	deps := SetupTestRoundService(t)
	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(1)
	seedServer(t, deps, guid, "Reconcile Test Server")

	t0 := time.Now().UTC().Truncate(time.Second).Add(-10 * time.Minute)
	if err := deps.SessionRepo.UpsertPlayer(deps.Env.Ctx, nil, names[0], t0, false); err != nil {
		t.Fatalf("UpsertPlayer failed: %v", err)
	}
	if err := deps.SessionRepo.InsertSession(deps.Env.Ctx, nil, &sessiondb.PlayerSession{
		PlayerName:       names[0],
		ServerGuid:       guid,
		MapName:          "berlin",
		StartTime:        t0,
		LastSeenTime:     t0.Add(9 * time.Minute),
		Active:           true,
		ObservationCount: 2,
		TotalScore:       10,
		TotalKills:       4,
		TotalDeaths:      1,
	}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	summary := reconcileWindow(t, deps, guid, t0.Add(-time.Hour), t0.Add(time.Hour))
	if summary.Groups != 1 || summary.Upserted != 0 || summary.Skipped != 1 {
		t.Errorf("forming group must be skipped: %+v", summary)
	}
	if got := countRounds(t, deps); got != 0 {
		t.Errorf("no round may be created for a live session, got %d", got)
	}
}

func TestReconcileWindowPreservesLiveRounds(t *testing.T) {
	deps := SetupTestRoundService(t)
	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(1)
	seedServer(t, deps, guid, "Reconcile Test Server")

	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	seedSessionInterval(t, deps, guid, "berlin", names[0], t0, t0.Add(20*time.Minute), 40, 15, 6)

	// The event path already closed this interval under an earlier start.
	liveID := sharedtypes.DeriveRoundID(guid, "berlin", t0.Add(-time.Minute))
	if err := deps.Repo.InsertRound(deps.Env.Ctx, nil, &rounddb.Round{
		ID:                liveID,
		ServerGuid:        guid,
		ServerName:        "Reconcile Test Server",
		Game:              sharedtypes.GameBF1942,
		MapName:           "berlin",
		StartTime:         t0.Add(-time.Minute),
		LastObservationAt: t0.Add(21 * time.Minute),
		Active:            false,
	}); err != nil {
		t.Fatalf("InsertRound failed: %v", err)
	}
	if err := deps.Repo.CompleteRound(deps.Env.Ctx, nil, liveID, t0.Add(21*time.Minute), 1); err != nil {
		t.Fatalf("CompleteRound failed: %v", err)
	}

	summary := reconcileWindow(t, deps, guid, t0.Add(-time.Hour), t0.Add(time.Hour))
	if summary.Upserted != 0 || summary.Skipped != 1 {
		t.Errorf("claimed interval must be skipped: %+v", summary)
	}
	if got := countRounds(t, deps); got != 1 {
		t.Errorf("expected only the live round, got %d", got)
	}
}
