package sources

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	sessionservice "github.com/frontline-stats/sitrep/app/modules/session/application"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	sessionmetrics "github.com/frontline-stats/sitrep/internal/observability/metrics/session"
)

// Poller drives periodic polls across all configured sources, handing every
// snapshot to the tracker. One failing source never blocks the others, and
// one rejected snapshot never fails the cycle.
type Poller struct {
	sources  []Source
	tracker  sessionservice.Service
	interval time.Duration
	logger   *slog.Logger
	metrics  sessionmetrics.SessionMetrics
}

func NewPoller(srcs []Source, tracker sessionservice.Service, interval time.Duration, logger *slog.Logger, metrics sessionmetrics.SessionMetrics) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		sources:  srcs,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run polls immediately, then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.InfoContext(ctx, "snapshot poller started",
		attr.Int("sources", len(p.sources)),
		attr.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "snapshot poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.sources {
		g.Go(func() error {
			p.pollSource(gctx, src)
			return nil
		})
	}
	g.Wait()
}

func (p *Poller) pollSource(ctx context.Context, src Source) {
	snapshots, err := src.FetchSnapshots(ctx)
	if err != nil {
		p.metrics.RecordSourcePollError(ctx, src.Name())
		p.logger.WarnContext(ctx, "source poll failed",
			attr.String("source", src.Name()),
			attr.Error(err),
		)
		return
	}

	observedAt := time.Now().UTC()
	for _, snapshot := range snapshots {
		if _, err := p.tracker.IngestSnapshot(ctx, snapshot, observedAt); err != nil {
			p.logger.ErrorContext(ctx, "snapshot ingest failed",
				attr.String("source", src.Name()),
				attr.ServerGuid("server_guid", snapshot.Guid),
				attr.Error(err),
			)
		}
	}
}
