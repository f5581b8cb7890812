package sessionservice

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// SweepSummary reports one pass of the timeout sweeper.
type SweepSummary struct {
	Cutoff time.Time
	Closed int
}

// CloseTimedOutSessions closes every active session whose last observation is
// older than the session timeout. The sweeper backstops ingestion so sessions
// on servers that vanish from the source feeds still terminate.
func (s *TrackerService) CloseTimedOutSessions(ctx context.Context, now time.Time) (SessionOperationResult, error) {
	return s.serviceWrapper(ctx, "CloseTimedOutSessions", "", func(ctx context.Context) (SessionOperationResult, error) {
		cutoff := now.Add(-s.sessionTimeout)

		var pending []pendingEvent
		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (SessionOperationResult, error) {
			closed, err := s.repo.CloseTimedOutSessions(ctx, db, cutoff)
			if err != nil {
				return SessionOperationResult{}, err
			}
			for i := range closed {
				pending = append(pending, pendingEvent{
					topic:   sharedevents.SessionClosedV1,
					payload: sessionClosedPayload(&closed[i], sharedtypes.CloseReasonTimeout),
				})
			}
			return SessionOperationResult{Success: &SweepSummary{Cutoff: cutoff, Closed: len(closed)}}, nil
		})
		if err != nil {
			return result, err
		}

		for _, ev := range pending {
			s.publishEvent(ctx, ev.topic, ev.payload)
		}
		if n := len(pending); n > 0 {
			s.metrics.RecordSessionsClosed(ctx, string(sharedtypes.CloseReasonTimeout), n)
			s.logger.InfoContext(ctx, "timed out sessions closed",
				attr.Int("count", n),
				attr.Time("cutoff", cutoff),
			)
		}
		return result, nil
	})
}
