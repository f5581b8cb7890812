// Package observability wires the logger, prometheus registry, tracer
// provider, and per-module metrics into one container handed to every module.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	achievementmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/achievement"
	roundmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/round"
	sessionmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/session"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
)

// Config controls observability setup.
type Config struct {
	ServiceName    string
	Environment    string
	LogLevel       string
	TracingEnabled bool
}

// Registry bundles the instrumented collaborators modules pull their
// metrics and tracers from.
type Registry struct {
	Prometheus         *prometheus.Registry
	TracerProvider     trace.TracerProvider
	SessionMetrics     sessionmetrics.SessionMetrics
	RoundMetrics       roundmetrics.RoundMetrics
	StatsMetrics       statsmetrics.StatsMetrics
	AchievementMetrics achievementmetrics.AchievementMetrics
}

// Observability is passed to every module at construction time.
type Observability struct {
	Logger   *slog.Logger
	Registry *Registry
}

// Tracer returns a named tracer from the configured provider.
func (o *Observability) Tracer(name string) trace.Tracer {
	return o.Registry.TracerProvider.Tracer(name)
}

// Init builds the observability container. Tracing falls back to a noop
// provider unless an external provider was installed and tracing is enabled.
func Init(cfg Config) (*Observability, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})).With(
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)

	promRegistry := prometheus.NewRegistry()
	if err := promRegistry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := promRegistry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	var tracerProvider trace.TracerProvider = noop.NewTracerProvider()
	if cfg.TracingEnabled {
		tracerProvider = otel.GetTracerProvider()
	}

	registry := &Registry{
		Prometheus:         promRegistry,
		TracerProvider:     tracerProvider,
		SessionMetrics:     sessionmetrics.NewPrometheusMetrics(promRegistry),
		RoundMetrics:       roundmetrics.NewPrometheusMetrics(promRegistry),
		StatsMetrics:       statsmetrics.NewPrometheusMetrics(promRegistry),
		AchievementMetrics: achievementmetrics.NewPrometheusMetrics(promRegistry),
	}

	return &Observability{Logger: logger, Registry: registry}, nil
}

// NewTestObservability returns a container suitable for unit tests: discard
// logger, noop tracer, noop metrics.
func NewTestObservability() *Observability {
	return &Observability{
		Logger: slog.New(slog.DiscardHandler),
		Registry: &Registry{
			Prometheus:         prometheus.NewRegistry(),
			TracerProvider:     noop.NewTracerProvider(),
			SessionMetrics:     &sessionmetrics.NoOpMetrics{},
			RoundMetrics:       &roundmetrics.NoOpMetrics{},
			StatsMetrics:       &statsmetrics.NoOpMetrics{},
			AchievementMetrics: &achievementmetrics.NoOpMetrics{},
		},
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
