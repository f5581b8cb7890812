// Package app assembles the modules, shared infrastructure, and admin surface
// into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/frontline-stats/sitrep/api"
	"github.com/frontline-stats/sitrep/app/modules/achievement"
	"github.com/frontline-stats/sitrep/app/modules/round"
	"github.com/frontline-stats/sitrep/app/modules/session"
	"github.com/frontline-stats/sitrep/app/modules/stats"
	statsqueue "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/queue"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/db/bundb"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	"github.com/frontline-stats/sitrep/internal/presence"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// App owns every long-lived component of the service.
type App struct {
	Config          *config.Config
	Observability   *observability.Observability
	DB              *bundb.DBService
	EventBus        eventbus.EventBus
	WatermillRouter *message.Router

	SessionModule     *session.Module
	RoundModule       *round.Module
	StatsModule       *stats.Module
	AchievementModule *achievement.Module

	QueueService *statsqueue.Service
	AdminServer  *api.AdminServer

	// PresenceCache and ColumnWriter stay nil when their backends are
	// disabled; every consumer tolerates that.
	PresenceCache *presence.Cache
	ColumnWriter  *columnstore.Writer

	helpers    utils.Helpers
	cancelFunc context.CancelFunc
}

// NewApp connects to every backing service and wires the modules together.
func NewApp(ctx context.Context, cfg *config.Config, obs *observability.Observability) (*App, error) {
	logger := obs.Logger
	app := &App{
		Config:        cfg,
		Observability: obs,
		helpers:       utils.NewHelpers(logger),
	}

	dbService, err := bundb.NewBunDBService(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}
	app.DB = dbService

	bus, err := eventbus.NewEventBus(ctx, cfg.NATS.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	app.EventBus = bus

	for _, stream := range []string{"session", "server", "round"} {
		if err := bus.CreateStream(ctx, stream, sharedevents.StreamSubjects[stream]); err != nil {
			return nil, fmt.Errorf("failed to create %s stream: %w", stream, err)
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create watermill router: %w", err)
	}
	app.WatermillRouter = router

	if cfg.Redis.Enabled {
		cache, err := presence.NewCache(ctx, cfg.Redis.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize presence cache: %w", err)
		}
		app.PresenceCache = cache
	}

	if cfg.ClickHouse.Enabled {
		writer, err := columnstore.NewWriter(ctx, columnstore.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize column store: %w", err)
		}
		app.ColumnWriter = writer
	}

	app.SessionModule, err = session.NewSessionModule(
		ctx, cfg, obs, dbService.SessionDB, dbService.GetDB(), bus,
		app.helpers, app.PresenceCache, app.ColumnWriter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session module: %w", err)
	}

	app.RoundModule, err = round.NewRoundModule(
		ctx, cfg, obs, dbService.RoundDB, dbService.GetDB(), bus, router,
		app.helpers, app.ColumnWriter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize round module: %w", err)
	}

	app.StatsModule, err = stats.NewStatsModule(
		ctx, cfg, obs, dbService.StatsDB, dbService.GetDB(), bus, router,
		app.helpers,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stats module: %w", err)
	}

	app.AchievementModule, err = achievement.NewAchievementModule(
		ctx, cfg, obs, dbService.AchievementDB, dbService.GetDB(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize achievement module: %w", err)
	}

	app.QueueService, err = statsqueue.NewService(
		ctx, dbService.GetDB(), logger, cfg.Postgres.DSN,
		app.StatsModule.StatsService, app.AchievementModule.AchievementService,
		cfg.Achievements.Interval, obs.Registry.StatsMetrics,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue service: %w", err)
	}

	app.AdminServer = api.NewAdminServer(
		cfg.Admin.Addr, logger,
		app.RoundModule.RoundService, app.StatsModule.StatsService,
		app.QueueService, obs.Registry.Prometheus,
	)

	logger.InfoContext(ctx, "Application initialized")
	return app, nil
}

// Run starts every component and blocks until a shutdown signal arrives or
// ctx is cancelled, then closes everything in dependency order.
func (app *App) Run(ctx context.Context) error {
	logger := app.Observability.Logger

	ctx, cancel := context.WithCancel(ctx)
	app.cancelFunc = cancel
	defer cancel()

	if app.ColumnWriter != nil {
		app.ColumnWriter.Start(ctx)
	}

	go func() {
		if err := app.WatermillRouter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watermill router stopped", attr.Error(err))
			cancel()
		}
	}()
	<-app.WatermillRouter.Running()

	var wg sync.WaitGroup
	wg.Add(4)
	go app.SessionModule.Run(ctx, &wg)
	go app.RoundModule.Run(ctx, &wg)
	go app.StatsModule.Run(ctx, &wg)
	go app.AchievementModule.Run(ctx, &wg)

	if err := app.QueueService.Start(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to start queue service: %w", err)
	}

	go func() {
		if err := app.AdminServer.Start(); err != nil {
			logger.Error("admin server stopped", attr.Error(err))
			cancel()
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-interrupt:
		logger.Info("Shutdown signal received")
	case <-ctx.Done():
		logger.Info("Run context cancelled")
	}

	cancel()
	wg.Wait()
	return app.Close()
}

// Close shuts components down in order: the admin surface and durable queue
// stop taking work first, the database closes last. Safe to call after a
// failed Run.
func (app *App) Close() error {
	logger := app.Observability.Logger
	logger.Info("Stopping application")

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if app.AdminServer != nil {
		if err := app.AdminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down admin server", attr.Error(err))
		}
	}
	if app.QueueService != nil {
		if err := app.QueueService.Stop(shutdownCtx); err != nil {
			logger.Error("error stopping queue service", attr.Error(err))
		}
	}

	if app.SessionModule != nil {
		if err := app.SessionModule.Close(); err != nil {
			logger.Error("error closing session module", attr.Error(err))
		}
	}
	if app.RoundModule != nil {
		if err := app.RoundModule.Close(); err != nil {
			logger.Error("error closing round module", attr.Error(err))
		}
	}
	if app.StatsModule != nil {
		if err := app.StatsModule.Close(); err != nil {
			logger.Error("error closing stats module", attr.Error(err))
		}
	}
	if app.AchievementModule != nil {
		if err := app.AchievementModule.Close(); err != nil {
			logger.Error("error closing achievement module", attr.Error(err))
		}
	}

	if app.WatermillRouter != nil {
		if err := app.WatermillRouter.Close(); err != nil {
			logger.Error("error closing watermill router", attr.Error(err))
		}
	}
	if app.EventBus != nil {
		if err := app.EventBus.Close(); err != nil {
			logger.Error("error closing event bus", attr.Error(err))
		}
	}
	if app.ColumnWriter != nil {
		if err := app.ColumnWriter.Close(); err != nil {
			logger.Error("error closing column store writer", attr.Error(err))
		}
	}
	if err := app.PresenceCache.Close(); err != nil {
		logger.Error("error closing presence cache", attr.Error(err))
	}

	if app.DB != nil {
		if err := app.DB.GetDB().Close(); err != nil {
			logger.Error("error closing database", attr.Error(err))
		}
	}

	logger.Info("Application shut down")
	return nil
}
