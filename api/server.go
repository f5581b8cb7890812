// Package api serves the admin and ops HTTP surface: backfill triggers, round
// moderation, report downloads, health, and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// RoundAdmin is the slice of the round service the admin surface uses.
type RoundAdmin interface {
	DeleteRound(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error)
	RestoreRound(ctx context.Context, id sharedtypes.RoundID) (roundservice.RoundOperationResult, error)
	ReconcileWindow(ctx context.Context, guid sharedtypes.ServerGuid, from, to time.Time) (roundservice.RoundOperationResult, error)
}

// StatsAdmin is the slice of the stats service the admin surface uses.
type StatsAdmin interface {
	RecomputeRound(ctx context.Context, roundID sharedtypes.RoundID) (statsservice.StatsOperationResult, error)
	RenderPlayerActivityChart(ctx context.Context, player sharedtypes.PlayerName, days int) (statsservice.StatsOperationResult, error)
	ExportServerLeaderboard(ctx context.Context, serverGuid sharedtypes.ServerGuid) (statsservice.StatsOperationResult, error)
}

// BackfillQueue schedules durable backfill runs.
type BackfillQueue interface {
	EnqueueBackfill(ctx context.Context, req statsservice.BackfillRequest) (string, error)
	HealthCheck(ctx context.Context) error
}

// AdminServer hosts the admin and ops endpoints. The surface carries no auth;
// it is meant to sit behind the operator's network boundary.
type AdminServer struct {
	logger   *slog.Logger
	rounds   RoundAdmin
	stats    StatsAdmin
	queue    BackfillQueue
	registry *prometheus.Registry
	server   *http.Server
}

// NewAdminServer builds the server and its route tree.
func NewAdminServer(
	addr string,
	logger *slog.Logger,
	rounds RoundAdmin,
	stats StatsAdmin,
	queue BackfillQueue,
	registry *prometheus.Registry,
) *AdminServer {
	s := &AdminServer{
		logger:   logger,
		rounds:   rounds,
		stats:    stats,
		queue:    queue,
		registry: registry,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes assembles the admin router.
func (s *AdminServer) Routes() http.Handler {
	limiter := newIPRateLimiter(5, 10)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(limiter.Handler)

	r.Get("/healthz", s.handleHealthz)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/admin", func(r chi.Router) {
		r.Post("/backfill", s.handleBackfill)
		r.Post("/rounds/reconcile", s.handleReconcileRounds)
		r.Delete("/rounds/{id}", s.handleDeleteRound)
		r.Post("/rounds/{id}/restore", s.handleRestoreRound)
		r.Get("/players/{name}/activity.png", s.handleActivityChart)
		r.Get("/servers/{guid}/leaderboard.xlsx", s.handleLeaderboardExport)
	})

	return r
}

// Start serves until Shutdown is called or the listener fails.
func (s *AdminServer) Start() error {
	s.logger.Info("Admin server listening", attr.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.queue != nil {
		if err := s.queue.HealthCheck(r.Context()); err != nil {
			s.logger.ErrorContext(r.Context(), "health check failed", attr.Error(err))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
