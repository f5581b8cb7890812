package statshandlers

import (
	"context"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// FakeStatsService records calls and returns canned results.
type FakeStatsService struct {
	Completions []sharedevents.RoundCompletedPayload
	Closes      []sharedevents.SessionClosedPayload

	HandleRoundCompletedFunc func(ctx context.Context, payload sharedevents.RoundCompletedPayload) (statsservice.StatsOperationResult, error)
	HandleSessionClosedFunc  func(ctx context.Context, payload sharedevents.SessionClosedPayload) (statsservice.StatsOperationResult, error)
}

func (f *FakeStatsService) HandleRoundCompleted(ctx context.Context, payload sharedevents.RoundCompletedPayload) (statsservice.StatsOperationResult, error) {
	f.Completions = append(f.Completions, payload)
	if f.HandleRoundCompletedFunc != nil {
		return f.HandleRoundCompletedFunc(ctx, payload)
	}
	return statsservice.StatsOperationResult{Success: &statsservice.RoundAppliedSummary{RoundID: payload.RoundID}}, nil
}

func (f *FakeStatsService) HandleSessionClosed(ctx context.Context, payload sharedevents.SessionClosedPayload) (statsservice.StatsOperationResult, error) {
	f.Closes = append(f.Closes, payload)
	if f.HandleSessionClosedFunc != nil {
		return f.HandleSessionClosedFunc(ctx, payload)
	}
	return statsservice.StatsOperationResult{Success: &statsservice.SessionQueuedSummary{Player: payload.Player}}, nil
}

func (f *FakeStatsService) ProcessPending(context.Context) (statsservice.StatsOperationResult, error) {
	return statsservice.StatsOperationResult{}, nil
}

func (f *FakeStatsService) RecomputeRound(context.Context, sharedtypes.RoundID) (statsservice.StatsOperationResult, error) {
	return statsservice.StatsOperationResult{}, nil
}

func (f *FakeStatsService) RunBackfill(context.Context, statsservice.BackfillRequest) (statsservice.StatsOperationResult, error) {
	return statsservice.StatsOperationResult{}, nil
}

func (f *FakeStatsService) RenderPlayerActivityChart(context.Context, sharedtypes.PlayerName, int) (statsservice.StatsOperationResult, error) {
	return statsservice.StatsOperationResult{}, nil
}

func (f *FakeStatsService) ExportServerLeaderboard(context.Context, sharedtypes.ServerGuid) (statsservice.StatsOperationResult, error) {
	return statsservice.StatsOperationResult{}, nil
}

func (f *FakeStatsService) QueueDepth() int { return 0 }

var _ statsservice.Service = (*FakeStatsService)(nil)
