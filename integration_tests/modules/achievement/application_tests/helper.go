package achievementintegrationtests

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	achievementservice "github.com/frontline-stats/sitrep/app/modules/achievement/application"
	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/integration_tests/testutils"
	achievementmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/achievement"
)

// TestDeps bundles what an achievement integration test needs. StatsRepo and
// RoundRepo seed the contribution and round rows the processor scans.
type TestDeps struct {
	Env       *testutils.TestEnvironment
	Repo      achievementdb.Repository
	StatsRepo statsdb.Repository
	RoundRepo rounddb.Repository
	Service   achievementservice.Service
	Gen       *testutils.TestDataGenerator
}

// SetupTestAchievementService wires the processor to the shared containers
// with cleaned tables.
func SetupTestAchievementService(t *testing.T) *TestDeps {
	t.Helper()
	env := testutils.GetTestEnv(t)

	if err := env.DeepCleanup(); err != nil {
		t.Fatalf("Failed to reset test state: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := achievementdb.NewAchievementRepository(env.DB)

	service := achievementservice.NewAchievementService(
		repo,
		logger,
		achievementmetrics.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		env.DB,
		0,
	)

	return &TestDeps{
		Env:       env,
		Repo:      repo,
		StatsRepo: statsdb.NewStatsRepository(env.DB),
		RoundRepo: rounddb.NewRoundRepository(env.DB),
		Service:   service,
		Gen:       testutils.NewTestDataGenerator(),
	}
}

// seedRoundWithContributions inserts a completed round plus one contribution
// row per participant, which is exactly the state the stats pipeline leaves
// behind once a completion has been applied.
func seedRoundWithContributions(t *testing.T, deps *TestDeps, id sharedtypes.RoundID, guid sharedtypes.ServerGuid, mapName string, start, end time.Time, rows []*statsdb.PlayerRoundStats) {
	t.Helper()
	ctx := deps.Env.Ctx

	if err := deps.RoundRepo.InsertRound(ctx, nil, &rounddb.Round{
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

	for _, row := range rows {
		row.RoundID = id
		row.ServerGuid = guid
		row.MapName = mapName
	}
	if err := deps.StatsRepo.UpsertRoundContributions(ctx, nil, rows); err != nil {
		t.Fatalf("UpsertRoundContributions failed: %v", err)
	}
}

// runOnce executes a processor pass and unwraps the summary.
func runOnce(t *testing.T, deps *TestDeps) *achievementservice.SweepSummary {
	t.Helper()
	result, err := deps.Service.RunOnce(deps.Env.Ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	summary, ok := result.Success.(*achievementservice.SweepSummary)
	if !ok {
		t.Fatalf("Unexpected success payload type %T", result.Success)
	}
	return summary
}

// listAchievements returns a player's awards ordered by code.
func listAchievements(t *testing.T, deps *TestDeps, player sharedtypes.PlayerName) []achievementdb.PlayerAchievement {
	t.Helper()
	var achievements []achievementdb.PlayerAchievement
	err := deps.Env.DB.NewSelect().
		Model(&achievements).
		Where("player_name = ?", player).
		Order("code ASC").
		Scan(deps.Env.Ctx)
	if err != nil {
		t.Fatalf("Failed to list achievements: %v", err)
	}
	return achievements
}
