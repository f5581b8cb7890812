package achievementservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	achievementmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/achievement"
)

// AchievementOperationResult carries the outcome of an achievement operation.
// Expected business failures land in Failure; Error is reserved for
// infrastructure problems.
type AchievementOperationResult struct {
	Success any
	Failure any
	Error   error
}

// IsSuccess reports whether the operation produced a success payload.
func (r AchievementOperationResult) IsSuccess() bool { return r.Success != nil }

// IsFailure reports whether the operation produced a failure payload.
func (r AchievementOperationResult) IsFailure() bool { return r.Failure != nil }

// AchievementService implements the Service interface.
type AchievementService struct {
	repo    achievementdb.Repository
	logger  *slog.Logger
	metrics achievementmetrics.AchievementMetrics
	tracer  trace.Tracer
	db      *bun.DB

	scanLimit int
}

// NewAchievementService creates a new AchievementService.
func NewAchievementService(
	repo achievementdb.Repository,
	logger *slog.Logger,
	metrics achievementmetrics.AchievementMetrics,
	tracer trace.Tracer,
	db *bun.DB,
	scanLimit int,
) *AchievementService {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &AchievementService{
		repo:      repo,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		db:        db,
		scanLimit: scanLimit,
	}
}

// serviceWrapper wraps an achievement operation with tracing, metrics,
// logging, and panic recovery.
func (s *AchievementService) serviceWrapper(
	ctx context.Context,
	operationName string,
	subject string,
	op func(ctx context.Context) (AchievementOperationResult, error),
) (result AchievementOperationResult, err error) {
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
			result = AchievementOperationResult{}
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
func (s *AchievementService) runInTx(
	ctx context.Context,
	fn func(ctx context.Context, db bun.IDB) (AchievementOperationResult, error),
) (AchievementOperationResult, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result AchievementOperationResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}
