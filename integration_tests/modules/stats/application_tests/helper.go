package statsintegrationtests

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/integration_tests/testutils"
	statsmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/stats"
	"github.com/frontline-stats/sitrep/internal/regionlock"
)

const defaultBackfillBatchSize = 100

// TestDeps bundles what a stats integration test needs. RoundRepo and
// SessionRepo seed the rounds and sessions the aggregate queries join.
type TestDeps struct {
	Env         *testutils.TestEnvironment
	Repo        statsdb.Repository
	RoundRepo   rounddb.Repository
	SessionRepo sessiondb.Repository
	Service     statsservice.Service
	Gen         *testutils.TestDataGenerator
}

// SetupTestStatsService wires a stats service to the shared containers with
// cleaned tables. An optional batch size overrides the backfill default for
// resume tests.
func SetupTestStatsService(t *testing.T, batchSize ...int) *TestDeps {
	t.Helper()
	env := testutils.GetTestEnv(t)

	if err := env.DeepCleanup(); err != nil {
		t.Fatalf("Failed to reset test state: %v", err)
	}

	size := defaultBackfillBatchSize
	if len(batchSize) > 0 {
		size = batchSize[0]
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := statsdb.NewStatsRepository(env.DB)

	service := statsservice.NewStatsService(
		repo,
		logger,
		statsmetrics.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		env.DB,
		regionlock.NewService(logger),
		size,
	)

	return &TestDeps{
		Env:         env,
		Repo:        repo,
		RoundRepo:   rounddb.NewRoundRepository(env.DB),
		SessionRepo: sessiondb.NewSessionRepository(env.DB),
		Service:     service,
		Gen:         testutils.NewTestDataGenerator(),
	}
}

// seedCompletedRound inserts a finished, undeleted round row. Every aggregate
// recompute joins contributions against rounds, so the row must exist before
// the first drain.
func seedCompletedRound(t *testing.T, deps *TestDeps, id sharedtypes.RoundID, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) {
	t.Helper()
	if err := deps.RoundRepo.InsertRound(deps.Env.Ctx, nil, &rounddb.Round{
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

// seedSessionInterval inserts a non-bot player and one session covering
// [start, end], the raw material the backfill rebuild reads.
func seedSessionInterval(t *testing.T, deps *TestDeps, guid sharedtypes.ServerGuid, mapName string, name sharedtypes.PlayerName, start, end time.Time, score, kills, deaths int) {
	t.Helper()
	ctx := deps.Env.Ctx

	if err := deps.SessionRepo.UpsertPlayer(ctx, nil, name, end, false); err != nil {
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

// completionFor builds a round-completed event for one participant set.
func completionFor(id sharedtypes.RoundID, guid sharedtypes.ServerGuid, mapName string, start, end time.Time, participants []sharedtypes.RoundParticipant) sharedevents.RoundCompletedPayload {
	return sharedevents.RoundCompletedPayload{
		RoundID:      id,
		ServerGuid:   guid,
		ServerName:   "Test Server",
		MapName:      mapName,
		StartTime:    start,
		EndTime:      end,
		Participants: participants,
	}
}

// drain processes the queue and fails the test on any per-key failure.
func drain(t *testing.T, deps *TestDeps) *statsservice.BatchSummary {
	t.Helper()
	result, err := deps.Service.ProcessPending(deps.Env.Ctx)
	if err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	summary, ok := result.Success.(*statsservice.BatchSummary)
	if !ok {
		t.Fatalf("Unexpected success payload type %T", result.Success)
	}
	if summary.Failed != 0 {
		t.Fatalf("ProcessPending reported %d failed keys", summary.Failed)
	}
	return summary
}
