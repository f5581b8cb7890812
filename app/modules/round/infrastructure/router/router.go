package roundrouter

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

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	roundhandlers "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/handlers"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/handlerwrapper"
	roundmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/round"
	"github.com/frontline-stats/sitrep/internal/utils"
)

const (
	TestEnvironmentFlag  = "APP_ENV"
	TestEnvironmentValue = "test"
)

// RoundRouter subscribes the round handlers to the session module's boundary
// topics.
type RoundRouter struct {
	logger     *slog.Logger
	Router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	helpers    utils.Helpers
	tracer     trace.Tracer

	metricsBuilder *metrics.PrometheusMetricsBuilder
	metricsEnabled bool
}

func NewRoundRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber eventbus.EventBus,
	publisher eventbus.EventBus,
	helpers utils.Helpers,
	tracer trace.Tracer,
	registry *prometheus.Registry,
) *RoundRouter {
	inTestEnv := os.Getenv(TestEnvironmentFlag) == TestEnvironmentValue

	var metricsBuilder *metrics.PrometheusMetricsBuilder
	if registry != nil && !inTestEnv {
		b := metrics.NewPrometheusMetricsBuilder(registry, "", "")
		metricsBuilder = &b
	}

	return &RoundRouter{
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
// RoundRouter.
func (r *RoundRouter) Configure(_ context.Context, service roundservice.Service, roundMetrics roundmetrics.RoundMetrics) error {
	if r.metricsEnabled && r.metricsBuilder != nil {
		r.metricsBuilder.AddPrometheusRouterMetrics(r.Router)
	}

	r.Router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{MaxRetries: 3}.Middleware,
	)

	handlers := roundhandlers.NewRoundHandlers(service, r.logger)
	if err := r.registerHandlers(handlers, roundMetrics); err != nil {
		return fmt.Errorf("failed to register round handlers: %w", err)
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
	handlerName := "round." + topic

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

func (r *RoundRouter) registerHandlers(h roundhandlers.Handlers, roundMetrics roundmetrics.RoundMetrics) error {
	deps := handlerDeps{
		router:     r.Router,
		subscriber: r.subscriber,
		publisher:  r.publisher,
		logger:     r.logger,
		tracer:     r.tracer,
		helpers:    r.helpers,
		metrics:    roundMetrics,
	}

	registerHandler(deps, sharedevents.ServerMapChangedV1, h.HandleServerMapChanged)
	registerHandler(deps, sharedevents.ServerSnapshotRecordedV1, h.HandleServerSnapshotRecorded)

	return nil
}

func (r *RoundRouter) Close() error {
	return r.Router.Close()
}
