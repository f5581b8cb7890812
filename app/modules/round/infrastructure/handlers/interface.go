package roundhandlers

import (
	"context"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
)

// Handlers defines the round module's event handlers.
type Handlers interface {
	HandleServerMapChanged(ctx context.Context, payload *sharedevents.ServerMapChangedPayload) ([]handlerwrapper.Result, error)
	HandleServerSnapshotRecorded(ctx context.Context, payload *sharedevents.ServerSnapshotRecordedPayload) ([]handlerwrapper.Result, error)
}
