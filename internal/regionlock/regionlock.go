// Package regionlock serializes aggregate writers through named exclusion
// regions. Each region admits one holder at a time; callers must never
// acquire a second region while holding one.
package regionlock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// Region names one mutual exclusion domain.
type Region string

const (
	RegionPlayerAggregates     Region = "player-aggregates"
	RegionServerMapStats       Region = "server-map-stats"
	RegionServerPlayerRankings Region = "server-player-rankings"
)

// slowAcquireThreshold is how long a waiter sits before we log contention.
const slowAcquireThreshold = 500 * time.Millisecond

// Service hands out exclusive access to regions.
type Service struct {
	mu      sync.Mutex
	regions map[Region]*semaphore.Weighted
	logger  *slog.Logger
}

// NewService returns a Service with no regions pre-created; regions come into
// existence on first use.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		regions: make(map[Region]*semaphore.Weighted),
		logger:  logger,
	}
}

// RunExclusive runs fn while holding the region. Acquisition blocks until the
// region is free or ctx is done; a cancelled wait returns ctx's error without
// running fn.
func (s *Service) RunExclusive(ctx context.Context, region Region, fn func(ctx context.Context) error) error {
	sem := s.semaphoreFor(region)

	waitStart := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire region %s: %w", region, err)
	}
	defer sem.Release(1)

	if wait := time.Since(waitStart); wait > slowAcquireThreshold {
		s.logger.WarnContext(ctx, "slow region acquisition",
			attr.String("region", string(region)),
			attr.Duration("waited", wait),
		)
	}

	return fn(ctx)
}

func (s *Service) semaphoreFor(region Region) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.regions[region]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.regions[region] = sem
	}
	return sem
}
