package roundservice

import (
	"context"
	"time"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Service is the round boundary and administration interface.
type Service interface {
	// Boundary detection
	HandleMapChange(ctx context.Context, payload sharedevents.ServerMapChangedPayload) (RoundOperationResult, error)
	HandleSnapshot(ctx context.Context, payload sharedevents.ServerSnapshotRecordedPayload) (RoundOperationResult, error)
	ReconcileWindow(ctx context.Context, guid sharedtypes.ServerGuid, from, to time.Time) (RoundOperationResult, error)

	// Administration
	DeleteRound(ctx context.Context, id sharedtypes.RoundID) (RoundOperationResult, error)
	RestoreRound(ctx context.Context, id sharedtypes.RoundID) (RoundOperationResult, error)
	GetRound(ctx context.Context, id sharedtypes.RoundID) (*rounddb.Round, error)
	ListRecentRounds(ctx context.Context, guid sharedtypes.ServerGuid, limit int) ([]rounddb.Round, error)
}
