package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/config"
	"github.com/fortuna/courtcast/internal/jobs"
	"github.com/fortuna/courtcast/internal/pipeline"
	"github.com/fortuna/courtcast/internal/prediction"
	"github.com/fortuna/courtcast/internal/service"
	"github.com/fortuna/courtcast/internal/store"
)

// HealthChecker is a dependency /health probes.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps wires the handlers to the read services and the job runner.
type Deps struct {
	Games       *service.GameService
	Players     *service.PlayerService
	League      *service.LeagueService
	Predictions *prediction.Service
	Jobs        *jobs.Runner
	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker
	Season string
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	games       *service.GameService
	players     *service.PlayerService
	league      *service.LeagueService
	predictions *prediction.Service
	jobs        *jobs.Runner
	checks      map[string]HealthChecker
	season      string
}

// NewHandler creates a new handler
func NewHandler(d Deps) *Handler {
	return &Handler{
		games:       d.Games,
		players:     d.Players,
		league:      d.League,
		predictions: d.Predictions,
		jobs:        d.Jobs,
		checks:      d.Checks,
		season:      d.Season,
	}
}

// HealthCheck reports each dependency and answers 503 when one is down.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":     overall,
		"service":    "courtcast",
		"components": components,
	})
}

// GetTeams returns every team
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.league.Teams(r.Context())
	if err != nil {
		respondFailure(w, "Failed to fetch teams", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetTeam returns one team
func (h *Handler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	team, err := h.league.Team(r.Context(), teamID)
	if err != nil {
		respondFailure(w, "Failed to fetch team", err)
		return
	}
	respondJSON(w, http.StatusOK, team)
}

// GetStandings returns conference standings for ?season=
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	standings, err := h.league.Standings(r.Context(), season)
	if err != nil {
		respondFailure(w, "Failed to fetch standings", err)
		return
	}
	respondJSON(w, http.StatusOK, standings)
}

// GetTodaysGames returns all games for today (live, scheduled, final)
func (h *Handler) GetTodaysGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.TodayGames(r.Context())
	if err != nil {
		respondFailure(w, "Failed to fetch today's games", err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

// GetLiveGame returns the box score of one game by its upstream id
func (h *Handler) GetLiveGame(w http.ResponseWriter, r *http.Request) {
	box, err := h.games.LiveGame(r.Context(), mux.Vars(r)["gameID"])
	if err != nil {
		respondFailure(w, "Failed to fetch game", err)
		return
	}
	respondJSON(w, http.StatusOK, box)
}

// GetPlayerStats returns a player's season averages
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	playerID, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	stats, err := h.players.PlayerSeasonStats(r.Context(), playerID, season)
	if err != nil {
		respondFailure(w, "Failed to fetch player stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetIngestionLogs returns the most recent ingestion runs
func (h *Handler) GetIngestionLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", service.DefaultLogLimit, 200)
	logs, err := h.league.RecentIngestionLogs(r.Context(), limit)
	if err != nil {
		respondFailure(w, "Failed to fetch ingestion logs", err)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// seasonParam reads ?season=, falling back to the current season. It
// writes a 400 and returns false on a malformed value.
func (h *Handler) seasonParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	season := r.URL.Query().Get("season")
	if season == "" {
		return h.season, true
	}
	if !config.ValidSeason(season) {
		respondError(w, http.StatusBadRequest, "Invalid season (use YYYY-YY)", nil)
		return "", false
	}
	return season, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}

// queryInt parses a positive integer parameter, keeping def when it is
// missing, malformed or above max.
func queryInt(r *http.Request, name string, def, max int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 && v <= max {
		return v
	}
	return def
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNoActiveModel):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped),
		errors.Is(err, apperr.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondFailure(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		accessLog.Error().Err(err).Msg(message)
	}
	respondError(w, status, message, err)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
