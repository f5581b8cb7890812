package sessionservice

import (
	"context"
	"time"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// Service is the session tracker's application interface.
type Service interface {
	// IngestSnapshot applies one server snapshot as a single atomic batch.
	IngestSnapshot(ctx context.Context, snapshot sharedtypes.ServerSnapshot, observedAt time.Time) (SessionOperationResult, error)

	// CloseTimedOutSessions closes every active session not seen within the
	// configured timeout, across all servers.
	CloseTimedOutSessions(ctx context.Context, now time.Time) (SessionOperationResult, error)
}
