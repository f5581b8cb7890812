package statsmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsMetrics records aggregate pipeline measurements.
type StatsMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationSuccess(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
	RecordQueueDepth(ctx context.Context, depth int)
	RecordQueueDeduplicated(ctx context.Context)
	RecordBatchProcessed(ctx context.Context, keys int, duration time.Duration)
	RecordMilestoneAwarded(ctx context.Context, threshold int)
	RecordBackfillBatch(ctx context.Context, players int)
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
	queueDepth         prometheus.Gauge
	queueDeduplicated  prometheus.Counter
	batchKeys          prometheus.Histogram
	batchDuration      prometheus.Histogram
	milestonesAwarded  *prometheus.CounterVec
	backfillBatches    prometheus.Counter
	backfillPlayers    prometheus.Counter
}

// NewPrometheusMetrics registers the stats collectors on the given registry.
func NewPrometheusMetrics(registry prometheus.Registerer) StatsMetrics {
	factory := promauto.With(registry)
	return &prometheusMetrics{
		operationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_operation_attempts_total",
			Help: "Number of stats operations started.",
		}, []string{"operation"}),
		operationSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_operation_successes_total",
			Help: "Number of stats operations that succeeded.",
		}, []string{"operation"}),
		operationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_operation_failures_total",
			Help: "Number of stats operations that failed.",
		}, []string{"operation"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_stats_operation_duration_seconds",
			Help:    "Duration of stats operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		handlerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_handler_attempts_total",
			Help: "Number of stats event handler invocations.",
		}, []string{"handler"}),
		handlerSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_handler_successes_total",
			Help: "Number of stats event handlers that succeeded.",
		}, []string{"handler"}),
		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_handler_failures_total",
			Help: "Number of stats event handlers that failed.",
		}, []string{"handler"}),
		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_stats_handler_duration_seconds",
			Help:    "Duration of stats event handlers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sitrep_stats_update_queue_depth",
			Help: "Pending keys in the aggregate update queue.",
		}),
		queueDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_stats_update_queue_deduplicated_total",
			Help: "Enqueues collapsed into an existing pending key.",
		}),
		batchKeys: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitrep_stats_batch_keys",
			Help:    "Keys drained per processing batch.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitrep_stats_batch_duration_seconds",
			Help:    "Duration of aggregate batch processing.",
			Buckets: prometheus.DefBuckets,
		}),
		milestonesAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_stats_milestones_awarded_total",
			Help: "Kill milestones awarded, by threshold.",
		}, []string{"threshold"}),
		backfillBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_stats_backfill_batches_total",
			Help: "Backfill batches completed.",
		}),
		backfillPlayers: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_stats_backfill_players_total",
			Help: "Players recomputed by backfill batches.",
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

func (m *prometheusMetrics) RecordQueueDepth(_ context.Context, depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *prometheusMetrics) RecordQueueDeduplicated(_ context.Context) {
	m.queueDeduplicated.Inc()
}

func (m *prometheusMetrics) RecordBatchProcessed(_ context.Context, keys int, duration time.Duration) {
	m.batchKeys.Observe(float64(keys))
	m.batchDuration.Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordMilestoneAwarded(_ context.Context, threshold int) {
	m.milestonesAwarded.WithLabelValues(thresholdLabel(threshold)).Inc()
}

func (m *prometheusMetrics) RecordBackfillBatch(_ context.Context, players int) {
	m.backfillBatches.Inc()
	m.backfillPlayers.Add(float64(players))
}

func thresholdLabel(threshold int) string {
	switch threshold {
	case 5000:
		return "5k"
	case 10000:
		return "10k"
	case 20000:
		return "20k"
	case 50000:
		return "50k"
	case 75000:
		return "75k"
	case 100000:
		return "100k"
	}
	return "other"
}

// NoOpMetrics discards all measurements. Used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration) {}
func (NoOpMetrics) RecordHandlerAttempt(context.Context, string)                   {}
func (NoOpMetrics) RecordHandlerSuccess(context.Context, string)                   {}
func (NoOpMetrics) RecordHandlerFailure(context.Context, string)                   {}
func (NoOpMetrics) RecordHandlerDuration(context.Context, string, time.Duration)   {}
func (NoOpMetrics) RecordQueueDepth(context.Context, int)                          {}
func (NoOpMetrics) RecordQueueDeduplicated(context.Context)                        {}
func (NoOpMetrics) RecordBatchProcessed(context.Context, int, time.Duration)       {}
func (NoOpMetrics) RecordMilestoneAwarded(context.Context, int)                    {}
func (NoOpMetrics) RecordBackfillBatch(context.Context, int)                       {}
