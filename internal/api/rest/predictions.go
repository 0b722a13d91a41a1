package rest

import (
	"net/http"

	"github.com/fortuna/courtcast/internal/prediction"
)

// GetPredictions returns the latest snapshot split by conference
func (h *Handler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	preds, err := h.predictions.AllPredictions(r.Context(), season)
	if err != nil {
		respondFailure(w, "Failed to fetch predictions", err)
		return
	}
	respondJSON(w, http.StatusOK, preds)
}

// GetTeamPrediction returns a team's latest prediction
func (h *Handler) GetTeamPrediction(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	pred, err := h.predictions.TeamPrediction(r.Context(), teamID, season)
	if err != nil {
		respondFailure(w, "Failed to fetch team prediction", err)
		return
	}
	respondJSON(w, http.StatusOK, pred)
}

// GetPredictionHistory returns a team's predictions, newest first
func (h *Handler) GetPredictionHistory(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", prediction.DefaultHistoryLimit, 100)
	history, err := h.predictions.PredictionHistory(r.Context(), teamID, season, limit)
	if err != nil {
		respondFailure(w, "Failed to fetch prediction history", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"team_id":     teamID,
		"season":      h.predictions.Season(season),
		"predictions": history,
	})
}

// GetPredictionsVsActual compares the latest predictions with standings
func (h *Handler) GetPredictionsVsActual(w http.ResponseWriter, r *http.Request) {
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	rows, err := h.predictions.PredictionsVsActual(r.Context(), season)
	if err != nil {
		respondFailure(w, "Failed to compare predictions", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// RefreshPredictions regenerates today's predictions synchronously
func (h *Handler) RefreshPredictions(w http.ResponseWriter, r *http.Request) {
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	res, err := h.predictions.GenerateFreshPredictions(r.Context(), season)
	if err != nil {
		respondFailure(w, "Failed to refresh predictions", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetModel returns the active model's metadata
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	md, err := h.predictions.ModelInfo(r.Context())
	if err != nil {
		respondFailure(w, "Failed to fetch model info", err)
		return
	}
	respondJSON(w, http.StatusOK, md)
}
