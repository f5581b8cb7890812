package roundmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoundMetrics records round boundary detection measurements.
type RoundMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationSuccess(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
	RecordRoundStarted(ctx context.Context, game string)
	RecordRoundCompleted(ctx context.Context, game string, length time.Duration, participants int)
	RecordHeuristicRounds(ctx context.Context, count int)
}

type prometheusMetrics struct {
	operationAttempts  *prometheus.CounterVec
	operationSuccesses *prometheus.CounterVec
	operationFailures  *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	handlerAttempts    *prometheus.CounterVec
	handlerSuccesses   *prometheus.CounterVec
	handlerFailures    *prometheus.CounterVec
	handlerDuration    *prometheus.HistogramVec
	roundsStarted      *prometheus.CounterVec
	roundsCompleted    *prometheus.CounterVec
	roundLength        *prometheus.HistogramVec
	roundParticipants  prometheus.Histogram
	heuristicRounds    prometheus.Counter
}

// NewPrometheusMetrics registers the round collectors on the given registry.
func NewPrometheusMetrics(registry prometheus.Registerer) RoundMetrics {
	factory := promauto.With(registry)
	return &prometheusMetrics{
		operationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_operation_attempts_total",
			Help: "Number of round operations started.",
		}, []string{"operation"}),
		operationSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_operation_successes_total",
			Help: "Number of round operations that succeeded.",
		}, []string{"operation"}),
		operationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_operation_failures_total",
			Help: "Number of round operations that failed.",
		}, []string{"operation"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_round_operation_duration_seconds",
			Help:    "Duration of round operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		handlerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_handler_attempts_total",
			Help: "Number of round event handler invocations.",
		}, []string{"handler"}),
		handlerSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_handler_successes_total",
			Help: "Number of round event handlers that succeeded.",
		}, []string{"handler"}),
		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_handler_failures_total",
			Help: "Number of round event handlers that failed.",
		}, []string{"handler"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_round_handler_duration_seconds",
			Help:    "Duration of round event handlers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		roundsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_rounds_started_total",
			Help: "Number of rounds opened.",
		}, []string{"game"}),
		roundsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_round_rounds_completed_total",
			Help: "Number of rounds closed.",
		}, []string{"game"}),
		roundLength: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_round_length_seconds",
			Help:    "Wall clock length of completed rounds.",
			Buckets: []float64{300, 600, 1200, 1800, 2700, 3600, 5400},
		}, []string{"game"}),
		roundParticipants: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitrep_round_participants",
			Help:    "Participants per completed round.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		heuristicRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_round_heuristic_rounds_total",
			Help: "Number of rounds reconstructed by the gap heuristic.",
		}),
	}
}

func (m *prometheusMetrics) RecordOperationAttempt(_ context.Context, operation string) {
	m.operationAttempts.WithLabelValues(operation).Inc()
}

func (m *prometheusMetrics) RecordOperationSuccess(_ context.Context, operation string) {
	m.operationSuccesses.WithLabelValues(operation).Inc()
}

func (m *prometheusMetrics) RecordOperationFailure(_ context.Context, operation string) {
	m.operationFailures.WithLabelValues(operation).Inc()
}

func (m *prometheusMetrics) RecordOperationDuration(_ context.Context, operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordHandlerAttempt(_ context.Context, handlerName string) {
	m.handlerAttempts.WithLabelValues(handlerName).Inc()
}

func (m *prometheusMetrics) RecordHandlerSuccess(_ context.Context, handlerName string) {
	m.handlerSuccesses.WithLabelValues(handlerName).Inc()
}

func (m *prometheusMetrics) RecordHandlerFailure(_ context.Context, handlerName string) {
	m.handlerFailures.WithLabelValues(handlerName).Inc()
}

func (m *prometheusMetrics) RecordHandlerDuration(_ context.Context, handlerName string, duration time.Duration) {
	m.handlerDuration.WithLabelValues(handlerName).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordRoundStarted(_ context.Context, game string) {
	m.roundsStarted.WithLabelValues(game).Inc()
}

func (m *prometheusMetrics) RecordRoundCompleted(_ context.Context, game string, length time.Duration, participants int) {
	m.roundsCompleted.WithLabelValues(game).Inc()
	m.roundLength.WithLabelValues(game).Observe(length.Seconds())
	m.roundParticipants.Observe(float64(participants))
}

func (m *prometheusMetrics) RecordHeuristicRounds(_ context.Context, count int) {
	m.heuristicRounds.Add(float64(count))
}

// NoOpMetrics discards all measurements. Used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                   {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string)                   {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                   {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration)   {}
func (NoOpMetrics) RecordHandlerAttempt(context.Context, string)                     {}
func (NoOpMetrics) RecordHandlerSuccess(context.Context, string)                     {}
func (NoOpMetrics) RecordHandlerFailure(context.Context, string)                     {}
func (NoOpMetrics) RecordHandlerDuration(context.Context, string, time.Duration)     {}
func (NoOpMetrics) RecordRoundStarted(context.Context, string)                       {}
func (NoOpMetrics) RecordRoundCompleted(context.Context, string, time.Duration, int) {}
func (NoOpMetrics) RecordHeuristicRounds(context.Context, int)                       {}
