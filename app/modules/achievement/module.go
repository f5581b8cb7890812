package achievement

import (
	"context"
	"sync"

	"github.com/uptrace/bun"

	achievementservice "github.com/frontline-stats/sitrep/app/modules/achievement/application"
	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/config"
	"github.com/frontline-stats/sitrep/internal/observability"
)

// Module owns the checkpointed achievement processor. The processor has no
// event subscriptions; the durable queue sweeps it on a schedule.
type Module struct {
	AchievementService achievementservice.Service

	config     *config.Config
	obs        *observability.Observability
	cancelFunc context.CancelFunc
}

// NewAchievementModule wires the achievement service.
func NewAchievementModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	repo achievementdb.Repository,
	db *bun.DB,
) (*Module, error) {
	logger := obs.Logger
	metrics := obs.Registry.AchievementMetrics
	tracer := obs.Tracer("achievement")

	achievementService := achievementservice.NewAchievementService(
		repo, logger, metrics, tracer, db, 0,
	)

	return &Module{
		AchievementService: achievementService,
		config:             cfg,
		obs:                obs,
	}, nil
}

// Run blocks until ctx is cancelled.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	m.obs.Logger.InfoContext(ctx, "Starting achievement module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	<-ctx.Done()
	m.obs.Logger.Info("Achievement module goroutine stopped")
}

func (m *Module) Close() error {
	m.obs.Logger.Info("Stopping achievement module")
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	return nil
}
