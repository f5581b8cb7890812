package round

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	roundrouter "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/router"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// Module owns round boundary detection: the service and the router feeding
// it boundary signals from the session module.
type Module struct {
	EventBus     eventbus.EventBus
	RoundService roundservice.Service
	RoundRouter  *roundrouter.RoundRouter

	config     *config.Config
	obs        *observability.Observability
	cancelFunc context.CancelFunc
}

// NewRoundModule wires the round service and subscribes its handlers.
func NewRoundModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	repo rounddb.Repository,
	db *bun.DB,
	eventBus eventbus.EventBus,
	watermillRouter *message.Router,
	helpers utils.Helpers,
	columns *columnstore.Writer,
) (*Module, error) {
	logger := obs.Logger
	metrics := obs.Registry.RoundMetrics
	tracer := obs.Tracer("round")

	roundService := roundservice.NewRoundService(
		repo, eventBus, logger, metrics, tracer, db, helpers,
		columns, cfg.Rounds.GapThreshold,
	)

	roundRouter := roundrouter.NewRoundRouter(
		logger, watermillRouter, eventBus, eventBus, helpers, tracer,
		obs.Registry.Prometheus,
	)
	if err := roundRouter.Configure(ctx, roundService, metrics); err != nil {
		return nil, fmt.Errorf("failed to configure round router: %w", err)
	}

	return &Module{
		EventBus:     eventBus,
		RoundService: roundService,
		RoundRouter:  roundRouter,
		config:       cfg,
		obs:          obs,
	}, nil
}

// Run blocks until ctx is cancelled. The router itself is run by the app.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	m.obs.Logger.InfoContext(ctx, "Starting round module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	<-ctx.Done()
	m.obs.Logger.Info("Round module goroutine stopped")
}

func (m *Module) Close() error {
	m.obs.Logger.Info("Stopping round module")
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	return nil
}
