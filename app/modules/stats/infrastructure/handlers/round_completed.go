package statshandlers

import (
	"context"
	"errors"
	"fmt"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// HandleRoundCompleted stores every participant's contribution for the round
// and queues their aggregate recomputes. A redelivered completion hits the
// same contribution rows and collapses in the queue, so the handler never
// needs to distinguish first delivery from replay.
func (h *StatsHandlers) HandleRoundCompleted(ctx context.Context, payload *sharedevents.RoundCompletedPayload) ([]handlerwrapper.Result, error) {
	if payload == nil {
		return nil, errors.New("payload is nil")
	}

	result, err := h.service.HandleRoundCompleted(ctx, *payload)
	if err != nil {
		return nil, fmt.Errorf("round completion for %s: %w", payload.RoundID, err)
	}
	if result.Failure != nil {
		h.logger.WarnContext(ctx, "round completion rejected",
			attr.RoundID("round_id", payload.RoundID),
			attr.Any("failure", result.Failure),
		)
	}
	return nil, nil
}
