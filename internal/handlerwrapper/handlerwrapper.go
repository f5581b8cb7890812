// Package handlerwrapper adapts typed event handlers into watermill handler
// functions, carrying the tracing, logging, and metrics every handler needs.
package handlerwrapper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frontline-stats/sitrep/internal/observability/attr"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// Result is one message a handler wants published after it returns. The
// router resolves the destination from Topic.
type Result struct {
	Topic   string
	Payload any
}

// Metrics records per-handler measurements. Each module's metric set
// satisfies this so the wrapper stays agnostic of which module it serves.
type Metrics interface {
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
}

// WrapTyped adapts a typed handler into a watermill HandlerFunc. Each message
// gets a fresh payload instance, a span, and attempt/duration/outcome
// metrics. Returned results become messages carrying their destination topic
// in metadata.
func WrapTyped[T any](
	handlerName string,
	logger *slog.Logger,
	tracer trace.Tracer,
	helpers utils.Helpers,
	metrics Metrics,
	handle func(ctx context.Context, payload *T) ([]Result, error),
) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx, span := tracer.Start(msg.Context(), handlerName, trace.WithAttributes(
			attribute.String("handler", handlerName),
			attribute.String("message_id", msg.UUID),
		))
		defer span.End()

		metrics.RecordHandlerAttempt(ctx, handlerName)

		startTime := time.Now()
		defer func() {
			metrics.RecordHandlerDuration(ctx, handlerName, time.Since(startTime))
		}()

		payload := new(T)
		if err := helpers.UnmarshalPayload(msg, payload); err != nil {
			logger.ErrorContext(ctx, "Failed to unmarshal payload",
				attr.String("handler", handlerName),
				attr.CorrelationIDFromMsg(msg),
				attr.Error(err),
			)
			metrics.RecordHandlerFailure(ctx, handlerName)
			return nil, fmt.Errorf("%s: unmarshal payload: %w", handlerName, err)
		}

		results, err := handle(ctx, payload)
		if err != nil {
			span.RecordError(err)
			logger.ErrorContext(ctx, "Handler failed",
				attr.String("handler", handlerName),
				attr.CorrelationIDFromMsg(msg),
				attr.Error(err),
			)
			metrics.RecordHandlerFailure(ctx, handlerName)
			return nil, err
		}

		outgoing := make([]*message.Message, 0, len(results))
		for _, res := range results {
			m, err := helpers.CreateResultMessage(msg, res.Payload, res.Topic)
			if err != nil {
				metrics.RecordHandlerFailure(ctx, handlerName)
				return nil, fmt.Errorf("%s: create result message for %s: %w", handlerName, res.Topic, err)
			}
			outgoing = append(outgoing, m)
		}

		metrics.RecordHandlerSuccess(ctx, handlerName)
		return outgoing, nil
	}
}
