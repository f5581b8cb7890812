package achievementmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AchievementMetrics records checkpointed processor measurements.
type AchievementMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationSuccess(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	RecordRoundsScanned(ctx context.Context, count int)
	RecordAchievementsAwarded(ctx context.Context, code string, count int)
	RecordCheckpointLag(ctx context.Context, lag time.Duration)
}

type prometheusMetrics struct {
	operationAttempts  *prometheus.CounterVec
	operationSuccesses *prometheus.CounterVec
	operationFailures  *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	roundsScanned      prometheus.Counter
	achievementsAwarded *prometheus.CounterVec
	checkpointLag      prometheus.Gauge
}

// NewPrometheusMetrics registers the achievement collectors on the given registry.
func NewPrometheusMetrics(registry prometheus.Registerer) AchievementMetrics {
	factory := promauto.With(registry)
	return &prometheusMetrics{
		operationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_achievement_operation_attempts_total",
			Help: "Number of achievement operations started.",
		}, []string{"operation"}),
		operationSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_achievement_operation_successes_total",
			Help: "Number of achievement operations that succeeded.",
		}, []string{"operation"}),
		operationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_achievement_operation_failures_total",
			Help: "Number of achievement operations that failed.",
		}, []string{"operation"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_achievement_operation_duration_seconds",
			Help:    "Duration of achievement operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		roundsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_achievement_rounds_scanned_total",
			Help: "Completed rounds scanned by the processor.",
		}),
		achievementsAwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_achievement_awarded_total",
			Help: "Achievements awarded, by code.",
		}, []string{"code"}),
		checkpointLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sitrep_achievement_checkpoint_lag_seconds",
			Help: "Wall clock distance between now and the processor cursor.",
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

func (m *prometheusMetrics) RecordRoundsScanned(_ context.Context, count int) {
	m.roundsScanned.Add(float64(count))
}

func (m *prometheusMetrics) RecordAchievementsAwarded(_ context.Context, code string, count int) {
	m.achievementsAwarded.WithLabelValues(code).Add(float64(count))
}

func (m *prometheusMetrics) RecordCheckpointLag(_ context.Context, lag time.Duration) {
	m.checkpointLag.Set(lag.Seconds())
}

// NoOpMetrics discards all measurements. Used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                 {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration) {}
func (NoOpMetrics) RecordRoundsScanned(context.Context, int)                       {}
func (NoOpMetrics) RecordAchievementsAwarded(context.Context, string, int)         {}
func (NoOpMetrics) RecordCheckpointLag(context.Context, time.Duration)             {}
