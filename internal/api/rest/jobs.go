package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fortuna/courtcast/internal/jobs"
)

// SubmitIncrementalRefresh queues an incremental refresh
func (h *Handler) SubmitIncrementalRefresh(w http.ResponseWriter, r *http.Request) {
	h.submitSeasonJob(w, r, jobs.TypeIncrementalRefresh)
}

// SubmitFullIngestion queues a full season ingestion
func (h *Handler) SubmitFullIngestion(w http.ResponseWriter, r *http.Request) {
	h.submitSeasonJob(w, r, jobs.TypeFullIngestion)
}

// SubmitHistoricalIngestion queues ingestion of every training season
func (h *Handler) SubmitHistoricalIngestion(w http.ResponseWriter, r *http.Request) {
	h.submit(w, jobs.TypeHistorical, nil)
}

// SubmitTraining queues a training run. ?version= names the model.
func (h *Handler) SubmitTraining(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{}
	if v := r.URL.Query().Get(jobs.ParamVersion); v != "" {
		params[jobs.ParamVersion] = v
	}
	h.submit(w, jobs.TypeTrain, params)
}

// GetJob returns one job
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(mux.Vars(r)["jobID"])
	if err != nil {
		respondFailure(w, "Failed to fetch job", err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// GetJobs lists recent jobs, newest first
func (h *Handler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.Recent(queryInt(r, "limit", 20, 100)))
}

func (h *Handler) submitSeasonJob(w http.ResponseWriter, r *http.Request, t jobs.Type) {
	season, ok := h.seasonParam(w, r)
	if !ok {
		return
	}
	h.submit(w, t, map[string]string{jobs.ParamSeason: season})
}

func (h *Handler) submit(w http.ResponseWriter, t jobs.Type, params map[string]string) {
	job, err := h.jobs.Submit(t, params)
	if err != nil {
		respondFailure(w, "Failed to submit job", err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}
