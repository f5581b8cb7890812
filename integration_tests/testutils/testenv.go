package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	_ "github.com/jackc/pgx/v5/stdlib"

	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/integration_tests/containers"
	"github.com/frontline-stats/sitrep/internal/eventbus"
)

// TestEnvironment holds all resources needed for integration testing: the
// Postgres and NATS containers, a migrated bun connection, and the event bus
// with the application's streams provisioned.
type TestEnvironment struct {
	Ctx           context.Context
	CancelContext context.CancelFunc
	PgContainer   *postgres.PostgresContainer
	NatsContainer testcontainers.Container
	DB            *bun.DB
	EventBus      eventbus.EventBus
	NatsConn      *nats.Conn
	JetStream     jetstream.JetStream
	Config        *config.Config
	T             *testing.T
}

var (
	sharedEnv     *TestEnvironment
	sharedEnvErr  error
	sharedEnvOnce sync.Once
)

// GetTestEnv returns the process-wide test environment, creating the
// containers on first use. Tests sharing the environment are responsible for
// cleaning the tables and streams they touch.
func GetTestEnv(t *testing.T) *TestEnvironment {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sharedEnvOnce.Do(func() {
		sharedEnv, sharedEnvErr = NewTestEnvironment()
	})
	if sharedEnvErr != nil {
		t.Fatalf("Failed to create test environment: %v", sharedEnvErr)
	}
	sharedEnv.T = t
	return sharedEnv
}

// ShutdownTestEnv tears down the shared environment. Call it from TestMain
// after m.Run.
func ShutdownTestEnv() {
	if sharedEnv != nil {
		sharedEnv.Cleanup()
		sharedEnv = nil
	}
}

// NewTestEnvironment creates a test environment with Postgres and NATS
// containers. Most tests should go through GetTestEnv instead.
func NewTestEnvironment() (*TestEnvironment, error) {
	ctx, cancel := context.WithCancel(context.Background())

	env := &TestEnvironment{
		Ctx:           ctx,
		CancelContext: cancel,
	}

	if err := env.setupContainers(ctx); err != nil {
		cancel()
		return nil, err
	}
	return env, nil
}

// setupContainers initializes the containers and every connection on top of
// them.
func (env *TestEnvironment) setupContainers(ctx context.Context) error {
	pgContainer, pgConnStr, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup postgres container: %w", err)
	}
	env.PgContainer = pgContainer

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		pgContainer.Terminate(ctx)
		return fmt.Errorf("failed to setup nats container: %w", err)
	}
	env.NatsContainer = natsContainer

	sqlDB, err := sql.Open("pgx", pgConnStr)
	if err != nil {
		cleanupContainers(ctx, pgContainer, natsContainer)
		return fmt.Errorf("failed to open sql DB connection: %w", err)
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	env.DB = db

	if err := runMigrations(db); err != nil {
		db.Close()
		cleanupContainers(ctx, pgContainer, natsContainer)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	natsConn, err := nats.Connect(natsURL, nats.Timeout(10*time.Second))
	if err != nil {
		db.Close()
		cleanupContainers(ctx, pgContainer, natsContainer)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	env.NatsConn = natsConn

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		db.Close()
		cleanupContainers(ctx, pgContainer, natsContainer)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}
	env.JetStream = js

	env.Config = &config.Config{
		Postgres: config.PostgresConfig{DSN: pgConnStr},
		NATS:     config.NATSConfig{URL: natsURL},
	}

	discardLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := eventbus.NewEventBus(ctx, natsURL, discardLogger)
	if err != nil {
		natsConn.Close()
		db.Close()
		cleanupContainers(ctx, pgContainer, natsContainer)
		return fmt.Errorf("failed to create EventBus: %w", err)
	}
	env.EventBus = bus

	// Provision the same streams the application creates at startup.
	for _, stream := range []string{"session", "server", "round"} {
		if err := bus.CreateStream(ctx, stream, sharedevents.StreamSubjects[stream]); err != nil {
			env.closeConnections()
			cleanupContainers(ctx, pgContainer, natsContainer)
			return fmt.Errorf("failed to create stream %s: %w", stream, err)
		}
	}

	return nil
}

// CheckContainerHealth verifies that containers are running and responsive.
func (env *TestEnvironment) CheckContainerHealth() error {
	ctx, cancel := context.WithTimeout(env.Ctx, 10*time.Second)
	defer cancel()

	if env.NatsContainer != nil {
		state, err := env.NatsContainer.State(ctx)
		if err != nil || !state.Running {
			return fmt.Errorf("NATS container not healthy: running=%v, err=%v", state.Running, err)
		}
	}

	if env.PgContainer != nil {
		state, err := env.PgContainer.State(ctx)
		if err != nil || !state.Running {
			return fmt.Errorf("PostgreSQL container not healthy: running=%v, err=%v", state.Running, err)
		}
	}

	if env.DB != nil {
		var result int
		if err := env.DB.NewSelect().ColumnExpr("1").Scan(ctx, &result); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
	}

	if env.NatsConn != nil && !env.NatsConn.IsConnected() {
		return fmt.Errorf("NATS connection not healthy")
	}

	return nil
}

// DeepCleanup resets database and JetStream state between tests.
func (env *TestEnvironment) DeepCleanup() error {
	if err := env.ResetJetStreamState(env.Ctx, "session", "server", "round"); err != nil {
		return fmt.Errorf("failed to reset JetStream: %w", err)
	}

	if err := CleanSessionTables(env.Ctx, env.DB); err != nil {
		log.Printf("Warning: failed to clean session tables: %v", err)
	}
	if err := CleanRoundTables(env.Ctx, env.DB); err != nil {
		log.Printf("Warning: failed to clean round tables: %v", err)
	}
	if err := CleanStatsTables(env.Ctx, env.DB); err != nil {
		log.Printf("Warning: failed to clean stats tables: %v", err)
	}
	if err := CleanAchievementTables(env.Ctx, env.DB); err != nil {
		log.Printf("Warning: failed to clean achievement tables: %v", err)
	}

	return nil
}

func (env *TestEnvironment) closeConnections() {
	if env.EventBus != nil {
		if closer, ok := env.EventBus.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing EventBus: %v", err)
			}
		}
		env.EventBus = nil
	}
	if env.NatsConn != nil {
		env.NatsConn.Close()
		env.NatsConn = nil
	}
	if env.DB != nil {
		env.DB.Close()
		env.DB = nil
	}
}

// Cleanup tears down all resources created for testing.
func (env *TestEnvironment) Cleanup() {
	log.Println("Cleaning up test environment...")
	if env.CancelContext != nil {
		env.CancelContext()
	}
	env.closeConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if env.NatsContainer != nil {
		if err := env.NatsContainer.Terminate(ctx); err != nil {
			log.Printf("Error terminating NATS container: %v", err)
		}
	}
	if env.PgContainer != nil {
		if err := env.PgContainer.Terminate(ctx); err != nil {
			log.Printf("Error terminating Postgres container: %v", err)
		}
	}
	log.Println("Cleanup complete.")
}

func cleanupContainers(ctx context.Context, pg *postgres.PostgresContainer, nats testcontainers.Container) {
	if pg != nil {
		pg.Terminate(ctx)
	}
	if nats != nil {
		nats.Terminate(ctx)
	}
}
