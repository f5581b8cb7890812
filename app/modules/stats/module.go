package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	statsrouter "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/router"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability"
	"github.com/frontline-stats/sitrep/internal/regionlock"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// Module owns incremental aggregation: the stats service with its dedup
// queue, the router feeding it completions, and the periodic drain loop.
type Module struct {
	EventBus     eventbus.EventBus
	StatsService statsservice.Service
	StatsRouter  *statsrouter.StatsRouter

	config     *config.Config
	obs        *observability.Observability
	cancelFunc context.CancelFunc
}

// NewStatsModule wires the stats service and subscribes its handlers.
func NewStatsModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	repo statsdb.Repository,
	db *bun.DB,
	eventBus eventbus.EventBus,
	watermillRouter *message.Router,
	helpers utils.Helpers,
) (*Module, error) {
	logger := obs.Logger
	metrics := obs.Registry.StatsMetrics
	tracer := obs.Tracer("stats")

	locks := regionlock.NewService(logger)

	statsService := statsservice.NewStatsService(
		repo, logger, metrics, tracer, db, locks,
		cfg.Stats.BackfillBatchSize,
	)

	statsRouter := statsrouter.NewStatsRouter(
		logger, watermillRouter, eventBus, eventBus, helpers, tracer,
		obs.Registry.Prometheus,
	)
	if err := statsRouter.Configure(ctx, statsService, metrics); err != nil {
		return nil, fmt.Errorf("failed to configure stats router: %w", err)
	}

	return &Module{
		EventBus:     eventBus,
		StatsService: statsService,
		StatsRouter:  statsRouter,
		config:       cfg,
		obs:          obs,
	}, nil
}

// Run starts the drain loop and blocks until ctx is cancelled. The router
// itself is run by the app.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	m.obs.Logger.InfoContext(ctx, "Starting stats module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	go m.runDrainer(ctx)

	<-ctx.Done()
	m.obs.Logger.Info("Stats module goroutine stopped")
}

// runDrainer flushes the pending-update queue on a fixed cadence. Keys queued
// between ticks coalesce, so a busy server costs one recompute per interval.
func (m *Module) runDrainer(ctx context.Context) {
	ticker := time.NewTicker(m.config.Stats.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.StatsService.ProcessPending(ctx); err != nil {
				m.obs.Logger.ErrorContext(ctx, "pending aggregate drain failed", "error", err)
			}
		}
	}
}

func (m *Module) Close() error {
	m.obs.Logger.Info("Stopping stats module")
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	return nil
}
