package roundhandlers

import (
	"context"
	"time"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// FakeRoundService records calls and returns canned results.
type FakeRoundService struct {
	MapChanges []sharedevents.ServerMapChangedPayload
	Snapshots  []sharedevents.ServerSnapshotRecordedPayload

	HandleMapChangeFunc func(ctx context.Context, payload sharedevents.ServerMapChangedPayload) (roundservice.RoundOperationResult, error)
	HandleSnapshotFunc  func(ctx context.Context, payload sharedevents.ServerSnapshotRecordedPayload) (roundservice.RoundOperationResult, error)
}

func (f *FakeRoundService) HandleMapChange(ctx context.Context, payload sharedevents.ServerMapChangedPayload) (roundservice.RoundOperationResult, error) {
	f.MapChanges = append(f.MapChanges, payload)
	if f.HandleMapChangeFunc != nil {
		return f.HandleMapChangeFunc(ctx, payload)
	}
	return roundservice.RoundOperationResult{Success: &roundservice.BoundarySummary{ServerGuid: payload.ServerGuid}}, nil
}

func (f *FakeRoundService) HandleSnapshot(ctx context.Context, payload sharedevents.ServerSnapshotRecordedPayload) (roundservice.RoundOperationResult, error) {
	f.Snapshots = append(f.Snapshots, payload)
	if f.HandleSnapshotFunc != nil {
		return f.HandleSnapshotFunc(ctx, payload)
	}
	return roundservice.RoundOperationResult{Success: &roundservice.BoundarySummary{ServerGuid: payload.ServerGuid}}, nil
}

func (f *FakeRoundService) ReconcileWindow(context.Context, sharedtypes.ServerGuid, time.Time, time.Time) (roundservice.RoundOperationResult, error) {
	return roundservice.RoundOperationResult{}, nil
}

func (f *FakeRoundService) DeleteRound(context.Context, sharedtypes.RoundID) (roundservice.RoundOperationResult, error) {
	return roundservice.RoundOperationResult{}, nil
}

func (f *FakeRoundService) RestoreRound(context.Context, sharedtypes.RoundID) (roundservice.RoundOperationResult, error) {
	return roundservice.RoundOperationResult{}, nil
}

func (f *FakeRoundService) GetRound(context.Context, sharedtypes.RoundID) (*rounddb.Round, error) {
	return nil, nil
}

func (f *FakeRoundService) ListRecentRounds(context.Context, sharedtypes.ServerGuid, int) ([]rounddb.Round, error) {
	return nil, nil
}

var _ roundservice.Service = (*FakeRoundService)(nil)
