package sessionservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	sessionmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/session"
	"github.com/frontline-stats/sitrep/internal/presence"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// SessionOperationResult carries the outcome of a tracker operation. Expected
// business failures land in Failure; Error is reserved for infrastructure
// problems.
type SessionOperationResult struct {
	Success any
	Failure any
	Error   error
}

// IsSuccess reports whether the operation produced a success payload.
func (r SessionOperationResult) IsSuccess() bool { return r.Success != nil }

// IsFailure reports whether the operation produced a failure payload.
func (r SessionOperationResult) IsFailure() bool { return r.Failure != nil }

// TrackerService implements the Service interface.
type TrackerService struct {
	repo     sessiondb.Repository
	EventBus eventbus.EventBus
	logger   *slog.Logger
	metrics  sessionmetrics.SessionMetrics
	tracer   trace.Tracer
	db       *bun.DB
	helpers  utils.Helpers

	presence *presence.Cache
	columns  *columnstore.Writer
	geo      GeoLookup

	sessionTimeout time.Duration
	geoEnabled     bool
}

// NewTrackerService creates a new TrackerService. presenceCache, columns, and
// geo may be nil; the corresponding side channels are then skipped.
func NewTrackerService(
	repo sessiondb.Repository,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	metrics sessionmetrics.SessionMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	helpers utils.Helpers,
	presenceCache *presence.Cache,
	columns *columnstore.Writer,
	geo GeoLookup,
	sessionTimeout time.Duration,
) *TrackerService {
	if sessionTimeout <= 0 {
		sessionTimeout = 5 * time.Minute
	}
	return &TrackerService{
		repo:           repo,
		EventBus:       eventBus,
		logger:         logger,
		metrics:        metrics,
		tracer:         tracer,
		db:             db,
		helpers:        helpers,
		presence:       presenceCache,
		columns:        columns,
		geo:            geo,
		sessionTimeout: sessionTimeout,
		geoEnabled:     geo != nil,
	}
}

// serviceWrapper wraps a tracker operation with tracing, metrics, logging,
// and panic recovery.
func (s *TrackerService) serviceWrapper(
	ctx context.Context,
	operationName string,
	serverGuid sharedtypes.ServerGuid,
	op func(ctx context.Context) (SessionOperationResult, error),
) (result SessionOperationResult, err error) {
	ctx, span := s.tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("server_guid", serverGuid.String()),
	))
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName)

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, time.Since(startTime))
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				attr.ServerGuid("server_guid", serverGuid),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName)
			span.RecordError(err)
			result = SessionOperationResult{}
		}
	}()

	result, err = op(ctx)
	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed",
			attr.String("operation", operationName),
			attr.ServerGuid("server_guid", serverGuid),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName)
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.String("operation", operationName),
			attr.ServerGuid("server_guid", serverGuid),
			attr.Any("failure_payload", result.Failure),
		)
	} else {
		s.metrics.RecordOperationSuccess(ctx, operationName)
	}

	return result, nil
}

// runInTx runs fn inside a transaction when a DB is configured. Unit tests
// construct the service without a DB and fn receives nil.
func (s *TrackerService) runInTx(
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (SessionOperationResult, error),
) (SessionOperationResult, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result SessionOperationResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}

// publishEvent marshals payload and publishes it fire-and-forget; failures
// are logged and never propagate into state handling.
func (s *TrackerService) publishEvent(ctx context.Context, topic string, payload any) {
	if s.EventBus == nil {
		return
	}
	msg, err := s.helpers.CreateNewMessage(payload, topic)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build event message",
			attr.String("topic", topic),
			attr.Error(err),
		)
		return
	}
	if err := s.EventBus.Publish(topic, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			attr.String("topic", topic),
			attr.Error(err),
		)
	}
}
