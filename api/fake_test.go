package api

import (
	"context"
	"time"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// ------------------------
// Fake Round Admin
// ------------------------

// FakeRoundAdmin is a programmable stub for the RoundAdmin interface. Defaults
// succeed; the Func fields override individual methods for error injection.
type FakeRoundAdmin struct {
	trace    []string
	RoundIDs []sharedtypes.RoundID

	ReconcileGuid sharedtypes.ServerGuid
	ReconcileFrom time.Time
	ReconcileTo   time.Time

	DeleteRoundFunc     func(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error)
	RestoreRoundFunc    func(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error)
	ReconcileWindowFunc func(ctx context.Context, guid sharedtypes.ServerGuid, from, to time.Time) (roundservice.RoundOperationResult, error)
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeRoundAdmin) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeRoundAdmin) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeRoundAdmin) DeleteRound(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error) {
	f.record("DeleteRound")
	f.RoundIDs = append(f.RoundIDs, id)
	if f.DeleteRoundFunc != nil {
		return f.DeleteRoundFunc(ctx, id)
	}
	return roundservice.RoundOperationResult{Success: &roundservice.RoundAdminSummary{RoundID: id, Deleted: true}}, nil
}

func (f *FakeRoundAdmin) RestoreRound(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error) {
	f.record("RestoreRound")
	f.RoundIDs = append(f.RoundIDs, id)
	if f.RestoreRoundFunc != nil {
		return f.RestoreRoundFunc(ctx, id)
	}
	return roundservice.RoundOperationResult{Success: &roundservice.RoundAdminSummary{RoundID: id, Deleted: false}}, nil
}

func (f *FakeRoundAdmin) ReconcileWindow(ctx context.Context, guid sharedtypes.ServerGuid, from, to time.Time) (roundservice.RoundOperationResult, error) {
	f.record("ReconcileWindow")
	f.ReconcileGuid = guid
	f.ReconcileFrom = from
	f.ReconcileTo = to
	if f.ReconcileWindowFunc != nil {
		return f.ReconcileWindowFunc(ctx, guid, from, to)
	}
	return roundservice.RoundOperationResult{Success: &roundservice.ReconcileSummary{
		ServerGuid: guid,
		From:       from,
		To:         to,
	}}, nil
}

var _ RoundAdmin = (*FakeRoundAdmin)(nil)

// ------------------------
// Fake Stats Admin
// ------------------------

// FakeStatsAdmin is a programmable stub for the StatsAdmin interface.
type FakeStatsAdmin struct {
	trace       []string
	RoundIDs    []sharedtypes.RoundID
	ChartPlayer sharedtypes.PlayerName
	ChartDays   int
	ExportGuid  sharedtypes.ServerGuid

	RecomputeRoundFunc            func(ctx context.Context, roundID sharedtypes.RoundID) (statsservice.StatsOperationResult, error)
	RenderPlayerActivityChartFunc func(ctx context.Context, player sharedtypes.PlayerName, days int) (statsservice.StatsOperationResult, error)
	ExportServerLeaderboardFunc   func(ctx context.Context, serverGuid sharedtypes.ServerGuid) (statsservice.StatsOperationResult, error)
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeStatsAdmin) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeStatsAdmin) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeStatsAdmin) RecomputeRound(ctx context.Context, roundID sharedtypes.RoundID) (statsservice.StatsOperationResult, error) {
	f.record("RecomputeRound")
	f.RoundIDs = append(f.RoundIDs, roundID)
	if f.RecomputeRoundFunc != nil {
		return f.RecomputeRoundFunc(ctx, roundID)
	}
	return statsservice.StatsOperationResult{Success: &statsservice.RoundRecomputeSummary{RoundID: roundID}}, nil
}

func (f *FakeStatsAdmin) RenderPlayerActivityChart(ctx context.Context, player sharedtypes.PlayerName, days int) (statsservice.StatsOperationResult, error) {
	f.record("RenderPlayerActivityChart")
	f.ChartPlayer = player
	f.ChartDays = days
	if f.RenderPlayerActivityChartFunc != nil {
		return f.RenderPlayerActivityChartFunc(ctx, player, days)
	}
	return statsservice.StatsOperationResult{Success: &statsservice.ActivityChart{
		Player: player,
		Days:   days,
		PNG:    []byte("png-bytes"),
	}}, nil
}

func (f *FakeStatsAdmin) ExportServerLeaderboard(ctx context.Context, serverGuid sharedtypes.ServerGuid) (statsservice.StatsOperationResult, error) {
	f.record("ExportServerLeaderboard")
	f.ExportGuid = serverGuid
	if f.ExportServerLeaderboardFunc != nil {
		return f.ExportServerLeaderboardFunc(ctx, serverGuid)
	}
	return statsservice.StatsOperationResult{Success: &statsservice.LeaderboardExport{
		ServerGuid: serverGuid,
		Rows:       1,
		XLSX:       []byte("xlsx-bytes"),
	}}, nil
}

var _ StatsAdmin = (*FakeStatsAdmin)(nil)

// ------------------------
// Fake Backfill Queue
// ------------------------

// FakeBackfillQueue is a programmable stub for the BackfillQueue interface.
type FakeBackfillQueue struct {
	trace    []string
	Requests []statsservice.BackfillRequest

	EnqueueBackfillFunc func(ctx context.Context, req statsservice.BackfillRequest) (string, error)
	HealthCheckFunc     func(ctx context.Context) error
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeBackfillQueue) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeBackfillQueue) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeBackfillQueue) EnqueueBackfill(ctx context.Context, req statsservice.BackfillRequest) (string, error) {
	f.record("EnqueueBackfill")
	f.Requests = append(f.Requests, req)
	if f.EnqueueBackfillFunc != nil {
		return f.EnqueueBackfillFunc(ctx, req)
	}
	return req.Key(), nil
}

func (f *FakeBackfillQueue) HealthCheck(ctx context.Context) error {
	f.record("HealthCheck")
	if f.HealthCheckFunc != nil {
		return f.HealthCheckFunc(ctx)
	}
	return nil
}

var _ BackfillQueue = (*FakeBackfillQueue)(nil)
