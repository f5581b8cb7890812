package roundintegrationtests

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/integration_tests/testutils"
	roundmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/round"
	"github.com/frontline-stats/sitrep/internal/utils"
)

const testGapThreshold = 10 * time.Minute

// TestDeps bundles what a round integration test needs. SessionRepo seeds the
// player and session rows the participant query reads.
type TestDeps struct {
	Env         *testutils.TestEnvironment
	Repo        rounddb.Repository
	SessionRepo sessiondb.Repository
	Service     roundservice.Service
	Gen         *testutils.TestDataGenerator
}

// SetupTestRoundService wires a round service to the shared containers with
// cleaned tables and streams.
func SetupTestRoundService(t *testing.T) *TestDeps {
	t.Helper()
	env := testutils.GetTestEnv(t)

	if err := env.DeepCleanup(); err != nil {
		t.Fatalf("Failed to reset test state: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := rounddb.NewRoundRepository(env.DB)

	service := roundservice.NewRoundService(
		repo,
		env.EventBus,
		logger,
		roundmetrics.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		env.DB,
		utils.NewHelpers(logger),
		nil,
		testGapThreshold,
	)

	return &TestDeps{
		Env:         env,
		Repo:        repo,
		SessionRepo: sessiondb.NewSessionRepository(env.DB),
		Service:     service,
		Gen:         testutils.NewTestDataGenerator(),
	}
}

// seedSessionInterval inserts a non-bot player and one session covering
// [start, end] so the participant query has rows to attribute.
func seedSessionInterval(t *testing.T, deps *TestDeps, guid sharedtypes.ServerGuid, mapName string, name sharedtypes.PlayerName, start, end time.Time, score, kills, deaths int) {
	t.Helper()
	ctx := deps.Env.Ctx

	if err := deps.SessionRepo.UpsertPlayer(ctx, nil, name, start, false); err != nil {
		t.Fatalf("UpsertPlayer failed: %v", err)
	}
	if err := deps.SessionRepo.InsertSession(ctx, nil, &sessiondb.PlayerSession{
		PlayerName:       name,
		ServerGuid:       guid,
		MapName:          mapName,
		StartTime:        start,
		LastSeenTime:     end,
		Active:           false,
		ObservationCount: 2,
		TotalScore:       score,
		TotalKills:       kills,
		TotalDeaths:      deaths,
	}); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
}
