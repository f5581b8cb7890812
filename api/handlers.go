package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// naturalParser recognizes phrases like "3 days ago" in backfill windows.
var naturalParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	return w
}()

type errorResponse struct {
	Error string `json:"error"`
}

type backfillRequestBody struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Server string `json:"server,omitempty"`
}

type backfillAccepted struct {
	RunKey string    `json:"run_key"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Server string    `json:"server,omitempty"`
}

type roundAdminResponse struct {
	RoundID           sharedtypes.RoundID `json:"round_id"`
	Deleted           bool                `json:"deleted"`
	PlayersRecomputed int                 `json:"players_recomputed"`
}

func (s *AdminServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", attr.Error(err))
	}
}

// parseTimeInput accepts RFC3339 or a natural English phrase relative to base.
func parseTimeInput(input string, base time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}
	r, err := naturalParser.Parse(input, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not recognize time format: %s", input)
	}
	return r.Time.UTC(), nil
}

func (s *AdminServer) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var body backfillRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	now := time.Now().UTC()
	from, err := parseTimeInput(body.From, now)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid from: %v", err)})
		return
	}
	to, err := parseTimeInput(body.To, now)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid to: %v", err)})
		return
	}
	if !from.Before(to) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "window start must precede window end"})
		return
	}

	req := statsservice.BackfillRequest{
		From:   from,
		To:     to,
		Server: sharedtypes.ServerGuid(body.Server),
	}
	runKey, err := s.queue.EnqueueBackfill(r.Context(), req)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to enqueue backfill", attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to enqueue backfill"})
		return
	}

	s.writeJSON(w, http.StatusAccepted, backfillAccepted{
		RunKey: runKey,
		From:   from,
		To:     to,
		Server: body.Server,
	})
}

type reconcileRequestBody struct {
	Server string `json:"server"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// handleReconcileRounds rebuilds round rows for one server from raw session
// history. Reruns over the same window are upserts, so the endpoint is safe
// to repeat.
func (s *AdminServer) handleReconcileRounds(w http.ResponseWriter, r *http.Request) {
	var body reconcileRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Server) == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "server is required"})
		return
	}

	now := time.Now().UTC()
	from, err := parseTimeInput(body.From, now)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid from: %v", err)})
		return
	}
	to, err := parseTimeInput(body.To, now)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid to: %v", err)})
		return
	}

	guid := sharedtypes.ServerGuid(body.Server)
	result, err := s.rounds.ReconcileWindow(r.Context(), guid, from, to)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "window reconcile failed", attr.ServerGuid("server_guid", guid), attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "window reconcile failed"})
		return
	}
	if result.IsFailure() {
		s.writeJSON(w, http.StatusBadRequest, result.Failure)
		return
	}
	s.writeJSON(w, http.StatusOK, result.Success)
}

func (s *AdminServer) handleDeleteRound(w http.ResponseWriter, r *http.Request) {
	s.moderateRound(w, r, true)
}

func (s *AdminServer) handleRestoreRound(w http.ResponseWriter, r *http.Request) {
	s.moderateRound(w, r, false)
}

// moderateRound flips a round's deletion flag, then recomputes every player
// the round touched so aggregates stop (or resume) counting it.
func (s *AdminServer) moderateRound(w http.ResponseWriter, r *http.Request, deleted bool) {
	id := sharedtypes.RoundID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var result roundservice.RoundOperationResult
	var err error
	if deleted {
		result, err = s.rounds.DeleteRound(ctx, id)
	} else {
		result, err = s.rounds.RestoreRound(ctx, id)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "round moderation failed", attr.RoundID("round_id", id), attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "round moderation failed"})
		return
	}
	if result.IsFailure() {
		s.writeJSON(w, http.StatusNotFound, result.Failure)
		return
	}

	recompute, err := s.stats.RecomputeRound(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "recompute after moderation failed", attr.RoundID("round_id", id), attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "round updated but recompute failed; rerun via backfill",
		})
		return
	}

	response := roundAdminResponse{RoundID: id, Deleted: deleted}
	if summary, ok := recompute.Success.(*statsservice.RoundRecomputeSummary); ok {
		response.PlayersRecomputed = summary.Players
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *AdminServer) handleActivityChart(w http.ResponseWriter, r *http.Request) {
	player := sharedtypes.PlayerName(chi.URLParam(r, "name"))

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "days must be a non-negative integer"})
			return
		}
		days = parsed
	}

	result, err := s.stats.RenderPlayerActivityChart(r.Context(), player, days)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "activity chart failed", attr.PlayerName("player", player), attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to render chart"})
		return
	}
	chart, ok := result.Success.(*statsservice.ActivityChart)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to render chart"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(chart.PNG)
}

func (s *AdminServer) handleLeaderboardExport(w http.ResponseWriter, r *http.Request) {
	guid := sharedtypes.ServerGuid(chi.URLParam(r, "guid"))

	result, err := s.stats.ExportServerLeaderboard(r.Context(), guid)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "leaderboard export failed", attr.ServerGuid("server_guid", guid), attr.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to export leaderboard"})
		return
	}
	export, ok := result.Success.(*statsservice.LeaderboardExport)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to export leaderboard"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("leaderboard-%s.xlsx", guid)))
	w.Write(export.XLSX)
}
