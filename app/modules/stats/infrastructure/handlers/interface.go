package statshandlers

import (
	"context"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
)

// Handlers defines the stats module's event handlers.
type Handlers interface {
	HandleRoundCompleted(ctx context.Context, payload *sharedevents.RoundCompletedPayload) ([]handlerwrapper.Result, error)
	HandleSessionClosed(ctx context.Context, payload *sharedevents.SessionClosedPayload) ([]handlerwrapper.Result, error)
}
