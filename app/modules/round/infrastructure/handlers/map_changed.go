package roundhandlers

import (
	"context"
	"errors"
	"fmt"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// HandleServerMapChanged closes the active round at the rotation instant and
// opens the next one. Completion events are published by the service after
// its transaction commits, so the handler itself returns no messages.
func (h *RoundHandlers) HandleServerMapChanged(ctx context.Context, payload *sharedevents.ServerMapChangedPayload) ([]handlerwrapper.Result, error) {
	if payload == nil {
		return nil, errors.New("payload is nil")
	}

	result, err := h.service.HandleMapChange(ctx, *payload)
	if err != nil {
		return nil, fmt.Errorf("map change for %s: %w", payload.ServerGuid, err)
	}
	if result.Failure != nil {
		h.logger.WarnContext(ctx, "map change rejected",
			attr.ServerGuid("server_guid", payload.ServerGuid),
			attr.Any("failure", result.Failure),
		)
	}
	return nil, nil
}
