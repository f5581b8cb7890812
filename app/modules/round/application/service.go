package roundservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	roundmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/round"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// RoundOperationResult carries the outcome of a round operation. Expected
// business failures land in Failure; Error is reserved for infrastructure
// problems.
type RoundOperationResult struct {
	Success any
	Failure any
	Error   error
}

// IsSuccess reports whether the operation produced a success payload.
func (r RoundOperationResult) IsSuccess() bool { return r.Success != nil }

// IsFailure reports whether the operation produced a failure payload.
func (r RoundOperationResult) IsFailure() bool { return r.Failure != nil }

// RoundService implements the Service interface.
type RoundService struct {
	repo     rounddb.Repository
	EventBus eventbus.EventBus
	logger   *slog.Logger
	metrics  roundmetrics.RoundMetrics
	tracer   trace.Tracer
	db       *bun.DB
	helpers  utils.Helpers
	columns  *columnstore.Writer

	gapThreshold time.Duration
}

// NewRoundService creates a new RoundService. columns may be nil; the
// columnar side channel is then skipped.
func NewRoundService(
	repo rounddb.Repository,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	metrics roundmetrics.RoundMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	helpers utils.Helpers,
	columns *columnstore.Writer,
	gapThreshold time.Duration,
) *RoundService {
	if gapThreshold <= 0 {
		gapThreshold = 10 * time.Minute
	}
	return &RoundService{
		repo:         repo,
		EventBus:     eventBus,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		db:           db,
		helpers:      helpers,
		columns:      columns,
		gapThreshold: gapThreshold,
	}
}

// serviceWrapper wraps a round operation with tracing, metrics, logging, and
// panic recovery.
func (s *RoundService) serviceWrapper(
	ctx context.Context,
	operationName string,
	serverGuid sharedtypes.ServerGuid,
	op func(ctx context.Context) (RoundOperationResult, error),
) (result RoundOperationResult, err error) {
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
			result = RoundOperationResult{}
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
func (s *RoundService) runInTx(
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (RoundOperationResult, error),
) (RoundOperationResult, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result RoundOperationResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}

type pendingEvent struct {
	topic   string
	payload any
}

// publishEvent marshals payload and publishes it fire-and-forget; failures
// are logged and never propagate into state handling.
func (s *RoundService) publishEvent(ctx context.Context, topic string, payload any) {
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
