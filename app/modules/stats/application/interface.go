package statsservice

import (
	"context"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Service is the aggregate pipeline interface: event intake, the scheduled
// drain, backfill, admin recompute, and reporting reads.
type Service interface {
	// Event intake
	HandleRoundCompleted(ctx context.Context, payload sharedevents.RoundCompletedPayload) (StatsOperationResult, error)
	HandleSessionClosed(ctx context.Context, payload sharedevents.SessionClosedPayload) (StatsOperationResult, error)

	// Scheduled processing
	ProcessPending(ctx context.Context) (StatsOperationResult, error)

	// Administration
	RecomputeRound(ctx context.Context, roundID sharedtypes.RoundID) (StatsOperationResult, error)
	RunBackfill(ctx context.Context, req BackfillRequest) (StatsOperationResult, error)

	// Reporting
	RenderPlayerActivityChart(ctx context.Context, player sharedtypes.PlayerName, days int) (StatsOperationResult, error)
	ExportServerLeaderboard(ctx context.Context, serverGuid sharedtypes.ServerGuid) (StatsOperationResult, error)

	QueueDepth() int
}
