package statsservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
	"github.com/frontline-stats/sitrep/internal/regionlock"
)

// KillMilestones are the fixed ascending kill thresholds a player can cross.
var KillMilestones = []int{5000, 10000, 20000, 50000, 75000, 100000}

// StatsOperationResult carries the outcome of a stats operation. Expected
// business failures land in Failure; Error is reserved for infrastructure
// problems.
type StatsOperationResult struct {
	Success any
	Failure any
	Error   error
}

// IsSuccess reports whether the operation produced a success payload.
func (r StatsOperationResult) IsSuccess() bool { return r.Success != nil }

// IsFailure reports whether the operation produced a failure payload.
func (r StatsOperationResult) IsFailure() bool { return r.Failure != nil }

// StatsService implements the Service interface.
type StatsService struct {
	repo    statsdb.Repository
	logger  *slog.Logger
	metrics statsmetrics.StatsMetrics
	tracer  trace.Tracer
	db      *bun.DB
	locks   *regionlock.Service
	queue   *UpdateQueue

	backfillBatchSize int
}

// NewStatsService creates a new StatsService and its update queue.
func NewStatsService(
	repo statsdb.Repository,
	logger *slog.Logger,
	metrics statsmetrics.StatsMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	locks *regionlock.Service,
	backfillBatchSize int,
) *StatsService {
	if backfillBatchSize <= 0 {
		backfillBatchSize = 100
	}
	s := &StatsService{
		repo:              repo,
		logger:            logger,
		metrics:           metrics,
		tracer:            tracer,
		db:                db,
		locks:             locks,
		backfillBatchSize: backfillBatchSize,
	}
	s.queue = NewUpdateQueue(func() { metrics.RecordQueueDeduplicated(context.Background()) })
	return s
}

// QueueDepth reports the number of keys waiting for the next drain.
func (s *StatsService) QueueDepth() int { return s.queue.Len() }

// serviceWrapper wraps a stats operation with tracing, metrics, logging, and
// panic recovery. subject names what the operation works on (a player, a
// server, a run key) and may be empty for batch operations.
func (s *StatsService) serviceWrapper(
	ctx context.Context,
	operationName string,
	subject string,
	op func(ctx context.Context) (StatsOperationResult, error),
) (result StatsOperationResult, err error) {
	ctx, span := s.tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("subject", subject),
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
				attr.String("subject", subject),
				attr.Error(err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName)
			span.RecordError(err)
			result = StatsOperationResult{}
		}
	}()

	result, err = op(ctx)
	if err != nil {
		wrappedErr := fmt.Errorf("%s: %w", operationName, err)
		s.logger.ErrorContext(ctx, "Operation failed",
			attr.String("operation", operationName),
			attr.String("subject", subject),
			attr.Error(wrappedErr),
		)
		s.metrics.RecordOperationFailure(ctx, operationName)
		span.RecordError(wrappedErr)
		return result, wrappedErr
	}

	if result.IsFailure() {
		s.logger.WarnContext(ctx, "Operation returned failure result",
			attr.String("operation", operationName),
			attr.String("subject", subject),
			attr.Any("failure_payload", result.Failure),
		)
	} else {
		s.metrics.RecordOperationSuccess(ctx, operationName)
	}

	return result, nil
}

// runInTx runs fn inside a transaction when a DB is configured. Unit tests
// construct the service without a DB and fn receives nil.
func (s *StatsService) runInTx(
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (StatsOperationResult, error),
) (StatsOperationResult, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result StatsOperationResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}
