package sessionintegrationtests

import (
	"testing"
	"time"

	sessionservice "github.com/frontline-stats/sitrep/app/modules/session/application"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func TestIngestSnapshotOpensSessions(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	names := deps.Gen.GeneratePlayerNames(3)
	snapshot := deps.Gen.GenerateSnapshot(guid, sharedtypes.GameBF1942, "berlin", deps.Gen.GeneratePlayers(names))
	observedAt := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	result, err := deps.Service.IngestSnapshot(ctx, snapshot, observedAt)
	if err != nil {
		t.Fatalf("IngestSnapshot returned error: %v", err)
	}
	if !result.IsSuccess() {
		t.Fatalf("Expected success, got failure: %+v", result.Failure)
	}
	summary, ok := result.Success.(*sessionservice.IngestSummary)
	if !ok {
		t.Fatalf("Unexpected success payload type %T", result.Success)
	}

	if summary.Opened != 3 {
		t.Errorf("Expected 3 opened sessions, got %d", summary.Opened)
	}
	if summary.Players != 3 {
		t.Errorf("Expected 3 players in summary, got %d", summary.Players)
	}
	if summary.MapChanged {
		t.Error("Expected no map change on first snapshot")
	}

	active, err := deps.Repo.ActiveSessionsForServer(ctx, nil, guid)
	if err != nil {
		t.Fatalf("ActiveSessionsForServer failed: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("Expected 3 active sessions in DB, got %d", len(active))
	}
	for _, sess := range active {
		if sess.MapName != "berlin" {
			t.Errorf("Session %d on map %q, expected berlin", sess.ID, sess.MapName)
		}
		if !sess.Active {
			t.Errorf("Session %d not active", sess.ID)
		}
	}

	server, err := deps.Repo.GetServer(ctx, nil, guid)
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if server == nil {
		t.Fatal("Expected server row to exist")
	}
	if server.CurrentMap != "berlin" {
		t.Errorf("Expected current map berlin, got %q", server.CurrentMap)
	}

	player, err := deps.Repo.GetPlayer(ctx, nil, names[0])
	if err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if player == nil {
		t.Fatalf("Expected player %s to exist", names[0])
	}
	if !player.LastSeen.Equal(observedAt) {
		t.Errorf("Expected player last seen %v, got %v", observedAt, player.LastSeen)
	}
}

func TestIngestSnapshotRefreshAccruesPlayMinutes(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	name := deps.Gen.GeneratePlayerName()
	t0 := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	first := deps.Gen.GenerateSnapshot(guid, sharedtypes.GameBF1942, "stalingrad", []sharedtypes.PlayerInfo{
		{Name: name, Score: 10, Kills: 5, Deaths: 2, TeamIndex: 1},
	})
	if _, err := deps.Service.IngestSnapshot(ctx, first, t0); err != nil {
		t.Fatalf("First IngestSnapshot failed: %v", err)
	}

	second := deps.Gen.GenerateSnapshot(guid, sharedtypes.GameBF1942, "stalingrad", []sharedtypes.PlayerInfo{
		{Name: name, Score: 25, Kills: 9, Deaths: 4, TeamIndex: 1},
	})
	result, err := deps.Service.IngestSnapshot(ctx, second, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Second IngestSnapshot failed: %v", err)
	}
	summary := result.Success.(*sessionservice.IngestSummary)
	if summary.Refreshed != 1 {
		t.Errorf("Expected 1 refreshed session, got %d", summary.Refreshed)
	}
	if summary.Opened != 0 {
		t.Errorf("Expected no new sessions, got %d", summary.Opened)
	}

	active, err := deps.Repo.ActiveSessionsForServer(ctx, nil, guid)
	if err != nil {
		t.Fatalf("ActiveSessionsForServer failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active session, got %d", len(active))
	}
	sess := active[0]
	if sess.TotalScore != 25 || sess.TotalKills != 9 || sess.TotalDeaths != 4 {
		t.Errorf("Expected session totals 25/9/4, got %d/%d/%d", sess.TotalScore, sess.TotalKills, sess.TotalDeaths)
	}
	if sess.ObservationCount != 2 {
		t.Errorf("Expected 2 observations, got %d", sess.ObservationCount)
	}

	player, err := deps.Repo.GetPlayer(ctx, nil, name)
	if err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if player.TotalPlayMinutes < 1.99 || player.TotalPlayMinutes > 2.01 {
		t.Errorf("Expected ~2 accrued play minutes, got %f", player.TotalPlayMinutes)
	}
}

func TestIngestSnapshotReplayIsSkipped(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	guid := deps.Gen.GenerateServerGuid()
	name := deps.Gen.GeneratePlayerName()
	t0 := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	snapshot := deps.Gen.GenerateSnapshot(guid, sharedtypes.GameFH2, "kursk", []sharedtypes.PlayerInfo{
		{Name: name, Score: 7, Kills: 3, Deaths: 1, TeamIndex: 2},
	})
	if _, err := deps.Service.IngestSnapshot(ctx, snapshot, t0); err != nil {
		t.Fatalf("First IngestSnapshot failed: %v", err)
	}

	// Same snapshot, same timestamp. A redelivered batch must not accrue
	// minutes or append observations.
	result, err := deps.Service.IngestSnapshot(ctx, snapshot, t0)
	if err != nil {
		t.Fatalf("Replay IngestSnapshot failed: %v", err)
	}
	summary := result.Success.(*sessionservice.IngestSummary)
	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped player on replay, got %d", summary.Skipped)
	}
	if summary.Refreshed != 0 || summary.Opened != 0 {
		t.Errorf("Expected no refresh or open on replay, got refreshed=%d opened=%d", summary.Refreshed, summary.Opened)
	}

	player, err := deps.Repo.GetPlayer(ctx, nil, name)
	if err != nil {
		t.Fatalf("GetPlayer failed: %v", err)
	}
	if player.TotalPlayMinutes != 0 {
		t.Errorf("Expected no accrued minutes after replay, got %f", player.TotalPlayMinutes)
	}

	active, err := deps.Repo.ActiveSessionsForServer(ctx, nil, guid)
	if err != nil {
		t.Fatalf("ActiveSessionsForServer failed: %v", err)
	}
	if len(active) != 1 || active[0].ObservationCount != 1 {
		t.Errorf("Expected single session with 1 observation, got %d sessions", len(active))
	}
}

func TestIngestSnapshotRejectsUnsupportedGame(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	snapshot := deps.Gen.GenerateSnapshot(deps.Gen.GenerateServerGuid(), "quake", "dm6", nil)
	result, err := deps.Service.IngestSnapshot(ctx, snapshot, time.Now().UTC())
	if err != nil {
		t.Fatalf("IngestSnapshot returned error: %v", err)
	}
	if !result.IsFailure() {
		t.Fatal("Expected failure result for unsupported game")
	}
	failure, ok := result.Failure.(*sessionservice.IngestFailure)
	if !ok {
		t.Fatalf("Unexpected failure payload type %T", result.Failure)
	}
	if failure.Reason != `unsupported game "quake"` {
		t.Errorf("Unexpected failure reason: %s", failure.Reason)
	}
}

func TestIngestSnapshotRejectsMissingTimestamp(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	snapshot := deps.Gen.GenerateSnapshot(deps.Gen.GenerateServerGuid(), sharedtypes.GameBF1942, "midway", nil)
	result, err := deps.Service.IngestSnapshot(ctx, snapshot, time.Time{})
	if err != nil {
		t.Fatalf("IngestSnapshot returned error: %v", err)
	}
	if !result.IsFailure() {
		t.Fatal("Expected failure result for zero timestamp")
	}
	failure := result.Failure.(*sessionservice.IngestFailure)
	if failure.Reason != "missing observation timestamp" {
		t.Errorf("Unexpected failure reason: %s", failure.Reason)
	}
}

func TestIngestSnapshotDerivesGuidFromAddress(t *testing.T) {
	deps := SetupTestSessionService(t)
	ctx := deps.Env.Ctx

	snapshot := deps.Gen.GenerateSnapshot("", sharedtypes.GameBFV, "ia_drang", deps.Gen.GeneratePlayers(deps.Gen.GeneratePlayerNames(2)))
	expected := sharedtypes.DeriveServerGuid(snapshot.Address, snapshot.Port)

	result, err := deps.Service.IngestSnapshot(ctx, snapshot, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("IngestSnapshot failed: %v", err)
	}
	summary := result.Success.(*sessionservice.IngestSummary)
	if summary.ServerGuid != expected {
		t.Errorf("Expected derived guid %s, got %s", expected, summary.ServerGuid)
	}

	server, err := deps.Repo.GetServer(ctx, nil, expected)
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if server == nil {
		t.Fatal("Expected server row under the derived guid")
	}
}
