package statshandlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

func newTestHandlers(svc *FakeStatsService) *StatsHandlers {
	return &StatsHandlers{
		service: svc,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandleRoundCompleted(t *testing.T) {
	svc := &FakeStatsService{}
	h := newTestHandlers(svc)

	payload := &sharedevents.RoundCompletedPayload{
		RoundID:    "srv-1|berlin|20250601T180000Z",
		ServerGuid: "srv-1",
		MapName:    "berlin",
		EndTime:    time.Date(2025, 6, 1, 18, 25, 0, 0, time.UTC),
		Participants: []sharedtypes.RoundParticipant{
			{Player: "hans", Score: 55, Kills: 20, Deaths: 8},
		},
	}

	results, err := h.HandleRoundCompleted(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("handler must not return messages, got %d", len(results))
	}
	if len(svc.Completions) != 1 || svc.Completions[0].RoundID != payload.RoundID {
		t.Errorf("service not called with payload: %+v", svc.Completions)
	}
}

func TestHandleRoundCompleted_NilPayload(t *testing.T) {
	h := newTestHandlers(&FakeStatsService{})
	if _, err := h.HandleRoundCompleted(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
}

func TestHandleRoundCompleted_ServiceError(t *testing.T) {
	svc := &FakeStatsService{
		HandleRoundCompletedFunc: func(context.Context, sharedevents.RoundCompletedPayload) (statsservice.StatsOperationResult, error) {
			return statsservice.StatsOperationResult{}, errors.New("db down")
		},
	}
	h := newTestHandlers(svc)

	_, err := h.HandleRoundCompleted(context.Background(), &sharedevents.RoundCompletedPayload{RoundID: "r-1"})
	if err == nil {
		t.Fatal("expected service error to propagate for redelivery")
	}
}

func TestHandleSessionClosed(t *testing.T) {
	svc := &FakeStatsService{}
	h := newTestHandlers(svc)

	payload := &sharedevents.SessionClosedPayload{
		SessionID:  12,
		Player:     "hans",
		ServerGuid: "srv-1",
		MapName:    "berlin",
		Reason:     sharedtypes.CloseReasonTimeout,
	}

	results, err := h.HandleSessionClosed(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("handler must not return messages, got %d", len(results))
	}
	if len(svc.Closes) != 1 || svc.Closes[0].Player != "hans" {
		t.Errorf("service not called with payload: %+v", svc.Closes)
	}
}

func TestHandleSessionClosed_NilPayload(t *testing.T) {
	h := newTestHandlers(&FakeStatsService{})
	if _, err := h.HandleSessionClosed(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil payload")
	}
}
