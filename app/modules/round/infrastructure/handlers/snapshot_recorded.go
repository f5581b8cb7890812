package roundhandlers

import (
	"context"
	"errors"
	"fmt"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// HandleServerSnapshotRecorded samples tickets into the active round, starts
// a round when none is active, and closes rounds whose map change event was
// missed.
func (h *RoundHandlers) HandleServerSnapshotRecorded(ctx context.Context, payload *sharedevents.ServerSnapshotRecordedPayload) ([]handlerwrapper.Result, error) {
	if payload == nil {
		return nil, errors.New("payload is nil")
	}

	result, err := h.service.HandleSnapshot(ctx, *payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", payload.ServerGuid, err)
	}
	if result.Failure != nil {
		h.logger.WarnContext(ctx, "snapshot rejected",
			attr.ServerGuid("server_guid", payload.ServerGuid),
			attr.Any("failure", result.Failure),
		)
	}
	return nil, nil
}
