package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// Source produces normalized server snapshots from one upstream feed.
type Source interface {
	Name() string
	Game() sharedtypes.Game
	FetchSnapshots(ctx context.Context) ([]sharedtypes.ServerSnapshot, error)
}

// HTTPSource polls a master-list style JSON endpoint. Requests are rate
// limited and guarded by a circuit breaker so a dead upstream stops costing
// timeouts after a few consecutive failures.
type HTTPSource struct {
	name    string
	game    sharedtypes.Game
	url     string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	adapter Adapter
	logger  *slog.Logger
}

// NewHTTPSource builds a source for one upstream feed. requestsPerMinute
// bounds the poll rate; zero or negative means one request per second.
func NewHTTPSource(name, url string, game sharedtypes.Game, requestsPerMinute int, adapter Adapter, logger *slog.Logger) *HTTPSource {
	limit := rate.Limit(1)
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}

	src := &HTTPSource{
		name:    name,
		game:    game,
		url:     url,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
		adapter: adapter,
		logger:  logger,
	}
	src.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("source circuit state changed",
				attr.String("source", name),
				attr.String("from", from.String()),
				attr.String("to", to.String()),
			)
		},
	})
	return src
}

func (s *HTTPSource) Name() string           { return s.name }
func (s *HTTPSource) Game() sharedtypes.Game { return s.game }

// FetchSnapshots performs one rate limited poll and normalizes the response.
func (s *HTTPSource) FetchSnapshots(ctx context.Context) ([]sharedtypes.ServerSnapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := s.breaker.Execute(func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}

	snapshots, err := s.adapter.Parse(body.([]byte))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.name, err)
	}
	for i := range snapshots {
		snapshots[i].Game = s.game
	}
	return snapshots, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
