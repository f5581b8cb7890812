package statsrouter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	statshandlers "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/handlers"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
	"github.com/frontline-stats/sitrep/internal/utils"
)

const (
	TestEnvironmentFlag  = "APP_ENV"
	TestEnvironmentValue = "test"
)

// StatsRouter subscribes the stats handlers to round completion and session
// close topics.
type StatsRouter struct {
	logger     *slog.Logger
	Router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	helpers    utils.Helpers
	tracer     trace.Tracer

	metricsBuilder *metrics.PrometheusMetricsBuilder
	metricsEnabled bool
}

func NewStatsRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber eventbus.EventBus,
	publisher eventbus.EventBus,
	helpers utils.Helpers,
	tracer trace.Tracer,
	registry *prometheus.Registry,
) *StatsRouter {
	inTestEnv := os.Getenv(TestEnvironmentFlag) == TestEnvironmentValue

	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if registry != nil && !inTestEnv {
		b := metrics.NewPrometheusMetricsBuilder(registry, "", "")
		metricsBuilder = &b
	}

	return &StatsRouter{
		logger:         logger,
		Router:         router,
		subscriber:     subscriber,
		publisher:      publisher,
		helpers:        helpers,
		tracer:         tracer,
		metricsBuilder: metricsBuilder,
		metricsEnabled: metricsBuilder != nil,
	}
}

// Configure registers middleware and handlers on the router held by the
// StatsRouter.
func (r *StatsRouter) Configure(_ context.Context, service statsservice.Service, statsMetrics statsmetrics.StatsMetrics) error {
	if r.metricsEnabled && r.metricsBuilder != nil {
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}

	r.Router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{MaxRetries: 3}.Middleware,
	)

	handlers := statshandlers.NewStatsHandlers(service, r.logger)
	if err := r.registerHandlers(handlers, statsMetrics); err != nil {
		return fmt.Errorf("failed to register stats handlers: %w", err)
	}
	return nil
}

type handlerDeps struct {
	router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	helpers    utils.Helpers
	metrics    handlerwrapper.Metrics
}

// registerHandler registers a typed handler for one topic. The publish topic
// is left empty; the bus reads each message's destination from metadata.
func registerHandler[T any](
	deps handlerDeps,
	topic string,
	handle func(context.Context, *T) ([]handlerwrapper.Result, error),
) {
	handlerName := "stats." + topic

	deps.router.AddHandler(
		handlerName,
		topic,
		deps.subscriber,
		"",
		deps.publisher,
		handlerwrapper.WrapTyped(
			handlerName,
			deps.logger,
			deps.tracer,
			deps.helpers,
			deps.metrics,
			handle,
		),
	)
}

func (r *StatsRouter) registerHandlers(h statshandlers.Handlers, statsMetrics statsmetrics.StatsMetrics) error {
	deps := handlerDeps{
		router:     r.Router,
		subscriber: r.subscriber,
		publisher:  r.publisher,
		logger:     r.logger,
		tracer:     r.tracer,
		helpers:    r.helpers,
		metrics:    statsMetrics,
	}

	registerHandler(deps, sharedevents.RoundCompletedV1, h.HandleRoundCompleted)
	registerHandler(deps, sharedevents.SessionClosedV1, h.HandleSessionClosed)

	return nil
}

func (r *StatsRouter) Close() error {
	return r.Router.Close()
}
