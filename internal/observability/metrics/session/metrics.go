package sessionmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionMetrics records ingest and session lifecycle measurements.
type SessionMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation string)
	RecordOperationSuccess(ctx context.Context, operation string)
	RecordOperationFailure(ctx context.Context, operation string)
	RecordOperationDuration(ctx context.Context, operation string, duration time.Duration)
	RecordSnapshotIngested(ctx context.Context, game string, players int)
	RecordSessionsOpened(ctx context.Context, count int)
	RecordSessionsClosed(ctx context.Context, reason string, count int)
	RecordSourcePollError(ctx context.Context, source string)
}

type prometheusMetrics struct {
	operationAttempts  *prometheus.CounterVec
	operationSuccesses *prometheus.CounterVec
	operationFailures  *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	snapshotsIngested  *prometheus.CounterVec
	playersObserved    *prometheus.CounterVec
	sessionsOpened     prometheus.Counter
	sessionsClosed     *prometheus.CounterVec
	sourcePollErrors   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the session collectors on the given registry.
func NewPrometheusMetrics(registry prometheus.Registerer) SessionMetrics {
	factory := promauto.With(registry)
	return &prometheusMetrics{
		operationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_operation_attempts_total",
			Help: "Number of session operations started.",
		}, []string{"operation"}),
		operationSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_operation_successes_total",
			Help: "Number of session operations that succeeded.",
		}, []string{"operation"}),
		operationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_operation_failures_total",
			Help: "Number of session operations that failed.",
		}, []string{"operation"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitrep_session_operation_duration_seconds",
			Help:    "Duration of session operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		snapshotsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_snapshots_ingested_total",
			Help: "Number of server snapshots ingested.",
		}, []string{"game"}),
		playersObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_players_observed_total",
			Help: "Number of player rows observed across snapshots.",
		}, []string{"game"}),
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "sitrep_session_sessions_opened_total",
			Help: "Number of player sessions opened.",
		}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_sessions_closed_total",
			Help: "Number of player sessions closed, by reason.",
		}, []string{"reason"}),
		sourcePollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sitrep_session_source_poll_errors_total",
			Help: "Number of failed snapshot source polls.",
		}, []string{"source"}),
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

func (m *prometheusMetrics) RecordSnapshotIngested(_ context.Context, game string, players int) {
	m.snapshotsIngested.WithLabelValues(game).Inc()
	m.playersObserved.WithLabelValues(game).Add(float64(players))
}

func (m *prometheusMetrics) RecordSessionsOpened(_ context.Context, count int) {
	m.sessionsOpened.Add(float64(count))
}

func (m *prometheusMetrics) RecordSessionsClosed(_ context.Context, reason string, count int) {
	m.sessionsClosed.WithLabelValues(reason).Add(float64(count))
}

func (m *prometheusMetrics) RecordSourcePollError(_ context.Context, source string) {
	m.sourcePollErrors.WithLabelValues(source).Inc()
}

// NoOpMetrics discards all measurements. Used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordOperationAttempt(context.Context, string)                {}
func (NoOpMetrics) RecordOperationSuccess(context.Context, string)                {}
func (NoOpMetrics) RecordOperationFailure(context.Context, string)                {}
func (NoOpMetrics) RecordOperationDuration(context.Context, string, time.Duration) {}
func (NoOpMetrics) RecordSnapshotIngested(context.Context, string, int)           {}
func (NoOpMetrics) RecordSessionsOpened(context.Context, int)                     {}
func (NoOpMetrics) RecordSessionsClosed(context.Context, string, int)             {}
func (NoOpMetrics) RecordSourcePollError(context.Context, string)                 {}
