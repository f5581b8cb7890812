package sessionservice

import (
	"context"
	"testing"
	"time"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func TestTrackerService_CloseTimedOutSessions(t *testing.T) {
	repo := NewFakeSessionRepository()
	bus := NewFakeEventBus()
	svc := newTestTracker(repo, bus)

	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	now := t0.Add(20 * time.Minute)

	ingestSuccess(t, svc, testSnapshot("berlin",
		sharedtypes.PlayerInfo{Name: "stale", Score: 10, Kills: 1, Deaths: 0},
	), t0)
	ingestSuccess(t, svc, testSnapshot("berlin",
		sharedtypes.PlayerInfo{Name: "fresh", Score: 5, Kills: 0, Deaths: 1},
	), now.Add(-time.Minute))

	result, err := svc.CloseTimedOutSessions(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	summary, ok := result.Success.(*SweepSummary)
	if !ok {
		t.Fatalf("unexpected success payload type %T", result.Success)
	}
	if summary.Closed != 1 {
		t.Errorf("expected 1 closed session, got %d", summary.Closed)
	}

	active := repo.ActiveSessions()
	if len(active) != 1 || active[0].PlayerName != "fresh" {
		t.Errorf("sweep closed the wrong sessions: %+v", active)
	}

	var closed sharedevents.SessionClosedPayload
	decodePayload(t, bus, sharedevents.SessionClosedV1, &closed)
	if closed.Player != "stale" || closed.Reason != sharedtypes.CloseReasonTimeout {
		t.Errorf("unexpected close payload: %+v", closed)
	}

	// A second pass finds nothing left to close.
	result, err = svc.CloseTimedOutSessions(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error on second sweep: %v", err)
	}
	if summary := result.Success.(*SweepSummary); summary.Closed != 0 {
		t.Errorf("second sweep must close nothing, got %d", summary.Closed)
	}
}

func TestTrackerService_CloseTimedOutSessions_BoundaryIsExclusive(t *testing.T) {
	repo := NewFakeSessionRepository()
	svc := newTestTracker(repo, nil)

	t0 := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	ingestSuccess(t, svc, testSnapshot("berlin",
		sharedtypes.PlayerInfo{Name: "edge", Score: 1},
	), t0)

	// last_seen exactly at the cutoff stays active.
	result, err := svc.CloseTimedOutSessions(context.Background(), t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary := result.Success.(*SweepSummary); summary.Closed != 0 {
		t.Errorf("session at the exact cutoff must stay open, got %d closed", summary.Closed)
	}
	if len(repo.ActiveSessions()) != 1 {
		t.Error("edge session should still be active")
	}
}
