package sessionintegrationtests

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	sessionservice "github.com/frontline-stats/sitrep/app/modules/session/application"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/integration_tests/testutils"
	sessionmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/session"
	"github.com/frontline-stats/sitrep/internal/utils"
)

const testSessionTimeout = 5 * time.Minute

// TestDeps bundles what a session integration test needs.
type TestDeps struct {
	Env     *testutils.TestEnvironment
	Repo    sessiondb.Repository
	Service sessionservice.Service
	Gen     *testutils.TestDataGenerator
}

// SetupTestSessionService wires a tracker service to the shared containers
// with cleaned tables and streams. Presence, columnstore, and geo side
// channels stay disabled; the tests assert on relational state.
func SetupTestSessionService(t *testing.T) *TestDeps {
	t.Helper()
	env := testutils.GetTestEnv(t)

	if err := env.DeepCleanup(); err != nil {
		t.Fatalf("Failed to reset test state: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := sessiondb.NewSessionRepository(env.DB)

	service := sessionservice.NewTrackerService(
		repo,
		env.EventBus,
		logger,
		sessionmetrics.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		env.DB,
		utils.NewHelpers(logger),
		nil,
		nil,
		nil,
		testSessionTimeout,
	)

	return &TestDeps{
		Env:     env,
		Repo:    repo,
		Service: service,
		Gen:     testutils.NewTestDataGenerator(),
	}
}
