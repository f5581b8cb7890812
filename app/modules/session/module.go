package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"

	sessionservice "github.com/frontline-stats/sitrep/app/modules/session/application"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/app/modules/session/infrastructure/sources"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability"
	"github.com/frontline-stats/sitrep/internal/presence"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// Module owns snapshot ingestion: the source poller, the tracker service,
// and the timeout sweeper.
type Module struct {
	EventBus       eventbus.EventBus
	TrackerService sessionservice.Service
	Poller         *sources.Poller

	config     *config.Config
	obs        *observability.Observability
	cancelFunc context.CancelFunc
}

// NewSessionModule wires the tracker service and one HTTP source per
// configured feed.
func NewSessionModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	repo sessiondb.Repository,
	db *bun.DB,
	eventBus eventbus.EventBus,
	helpers utils.Helpers,
	presenceCache *presence.Cache,
	columns *columnstore.Writer,
) (*Module, error) {
	logger := obs.Logger
	metrics := obs.Registry.SessionMetrics
	tracer := obs.Tracer("session")

	var geo sessionservice.GeoLookup
	if cfg.Ingest.GeoLookup {
		geo = sessionservice.NewHTTPGeoLookup()
	}

	trackerService := sessionservice.NewTrackerService(
		repo, eventBus, logger, metrics, tracer, db, helpers,
		presenceCache, columns, geo, cfg.Ingest.SessionTimeout,
	)

	srcs := make([]sources.Source, 0, len(cfg.Ingest.Sources))
	for _, sc := range cfg.Ingest.Sources {
		game := sharedtypes.Game(sc.Game)
		adapter, err := sources.AdapterForGame(game)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		srcs = append(srcs, sources.NewHTTPSource(sc.Name, sc.URL, game, sc.RequestsPerMinute, adapter, logger))
	}

	poller := sources.NewPoller(srcs, trackerService, cfg.Ingest.PollInterval, logger, metrics)

	return &Module{
		EventBus:       eventBus,
		TrackerService: trackerService,
		Poller:         poller,
		config:         cfg,
		obs:            obs,
	}, nil
}

// Run starts the poller and the sweep loop and blocks until ctx is cancelled.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	m.obs.Logger.InfoContext(ctx, "Starting session module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	go m.Poller.Run(ctx)
	go m.runSweeper(ctx)

	<-ctx.Done()
	m.obs.Logger.Info("Session module goroutine stopped")
}

func (m *Module) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.config.Ingest.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.TrackerService.CloseTimedOutSessions(ctx, time.Now().UTC()); err != nil {
				m.obs.Logger.ErrorContext(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

func (m *Module) Close() error {
	m.obs.Logger.Info("Stopping session module")
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	return nil
}
