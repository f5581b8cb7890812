package statshandler_integration_tests

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace/noop"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/app/modules/stats"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/integration_tests/testutils"
	"github.com/frontline-stats/sitrep/internal/eventbus"
	"github.com/frontline-stats/sitrep/internal/observability"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
	"github.com/frontline-stats/sitrep/internal/utils"
)

// HandlerTestDeps carries a running stats module whose router is subscribed
// to the real bus.
type HandlerTestDeps struct {
	*testutils.TestEnvironment
	StatsModule *stats.Module
	Router      *message.Router
	EventBus    eventbus.EventBus
	Repo        statsdb.Repository
	RoundRepo   rounddb.Repository
	Helpers     utils.Helpers
	Gen         *testutils.TestDataGenerator
}

// SetupTestStatsHandler builds the stats module against the shared containers
// and runs its router until the test ends. The module's drain ticker is not
// started; tests drain explicitly so assertions stay deterministic.
func SetupTestStatsHandler(t *testing.T) HandlerTestDeps {
	t.Helper()
	env := testutils.GetTestEnv(t)

	if err := env.DeepCleanup(); err != nil {
		t.Fatalf("Failed to reset test state: %v", err)
	}

	// Keep prometheus middleware off; repeated registration across tests
	// panics the default registry.
	oldEnv := os.Getenv("APP_ENV")
	os.Setenv("APP_ENV", "test")
	t.Cleanup(func() { os.Setenv("APP_ENV", oldEnv) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus, err := eventbus.NewEventBus(env.Ctx, env.Config.NATS.URL, logger)
	if err != nil {
		t.Fatalf("Failed to create event bus: %v", err)
	}

	router, err := message.NewRouter(
		message.RouterConfig{CloseTimeout: 100 * time.Millisecond},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		closeBus(bus)
		t.Fatalf("Failed to create watermill router: %v", err)
	}

	obs := &observability.Observability{
		Logger: logger,
		Registry: &observability.Registry{
			TracerProvider: noop.NewTracerProvider(),
			StatsMetrics:   statsmetrics.NoOpMetrics{},
		},
	}
	cfg := &config.Config{
		Postgres: env.Config.Postgres,
		NATS:     env.Config.NATS,
		Stats: config.StatsConfig{
			DrainInterval:     time.Second,
			BackfillBatchSize: 100,
		},
	}

	repo := statsdb.NewStatsRepository(env.DB)
	helpers := utils.NewHelpers(logger)

	module, err := stats.NewStatsModule(env.Ctx, cfg, obs, repo, env.DB, bus, router, helpers)
	if err != nil {
		closeBus(bus)
		router.Close()
		t.Fatalf("Failed to create stats module: %v", err)
	}

	routerCtx, routerCancel := context.WithCancel(env.Ctx)
	routerWg := &sync.WaitGroup{}
	routerWg.Add(1)
	go func() {
		defer routerWg.Done()
		if runErr := router.Run(routerCtx); runErr != nil && runErr != context.Canceled {
			t.Errorf("Watermill router stopped with error: %v", runErr)
		}
	}()

	select {
	case <-router.Running():
	case <-time.After(10 * time.Second):
		routerCancel()
		t.Fatal("Watermill router did not start in time")
	}

	t.Cleanup(func() {
		routerCancel()

		waitCh := make(chan struct{})
		go func() {
			routerWg.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-time.After(2 * time.Second):
			log.Println("WARNING: router shutdown timed out")
		}

		closeBus(bus)
	})

	return HandlerTestDeps{
		TestEnvironment: env,
		StatsModule:     module,
		Router:          router,
		EventBus:        bus,
		Repo:            repo,
		RoundRepo:       rounddb.NewRoundRepository(env.DB),
		Helpers:         helpers,
		Gen:             testutils.NewTestDataGenerator(),
	}
}

func closeBus(bus eventbus.EventBus) {
	if closer, ok := bus.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("Failed to close event bus: %v", err)
		}
	}
}

func seedCompletedRound(t *testing.T, deps HandlerTestDeps, id sharedtypes.RoundID, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) {
	t.Helper()
	if err := deps.RoundRepo.InsertRound(deps.Ctx, nil, &rounddb.Round{
		ID:                id,
		ServerGuid:        guid,
		Game:              sharedtypes.GameBF1942,
		MapName:           mapName,
		StartTime:         start,
		EndTime:           end,
		LastObservationAt: end,
		Active:            false,
	}); err != nil {
		t.Fatalf("InsertRound failed: %v", err)
	}
}
