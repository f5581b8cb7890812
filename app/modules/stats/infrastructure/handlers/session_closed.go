package statshandlers

import (
	"context"
	"errors"
	"fmt"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// HandleSessionClosed queues an aggregate recompute for the player whose
// session ended. The close itself carries no aggregate numbers; it is a
// trigger to refresh rollups once timeout sweeps finish the player's rounds.
func (h *StatsHandlers) HandleSessionClosed(ctx context.Context, payload *sharedevents.SessionClosedPayload) ([]handlerwrapper.Result, error) {
	if payload == nil {
		return nil, errors.New("payload is nil")
	}

	result, err := h.service.HandleSessionClosed(ctx, *payload)
	if err != nil {
		return nil, fmt.Errorf("session close for %s: %w", payload.Player, err)
	}
	if result.Failure != nil {
		h.logger.WarnContext(ctx, "session close rejected",
			attr.PlayerName("player", payload.Player),
			attr.Any("failure", result.Failure),
		)
	}
	return nil, nil
}
