// Package rest serves the read and control API over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	addr    string
	server  *http.Server
	handler *Handler
}

// NewServer creates a new REST API server
func NewServer(addr string, d Deps) *Server {
	handler := NewHandler(d)
	return &Server{
		addr:    addr,
		handler: handler,
		server: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(handler),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the route table around handler. CORS wraps the router
// so preflight requests are answered before route matching.
func NewRouter(handler *Handler) http.Handler {
	router := mux.NewRouter()

	router.Use(RequestIDMiddleware)
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	// League
	api.HandleFunc("/teams", handler.GetTeams).Methods("GET")
	api.HandleFunc("/teams/{teamID:[0-9]+}", handler.GetTeam).Methods("GET")
	api.HandleFunc("/standings", handler.GetStandings).Methods("GET")
	api.HandleFunc("/players/{playerID:[0-9]+}/stats", handler.GetPlayerStats).Methods("GET")

	// Games
	api.HandleFunc("/games/today", handler.GetTodaysGames).Methods("GET")
	api.HandleFunc("/games/live/{gameID}", handler.GetLiveGame).Methods("GET")

	// Predictions
	api.HandleFunc("/predictions", handler.GetPredictions).Methods("GET")
	api.HandleFunc("/predictions/vs-actual", handler.GetPredictionsVsActual).Methods("GET")
	api.HandleFunc("/predictions/refresh", handler.RefreshPredictions).Methods("POST")
	api.HandleFunc("/predictions/teams/{teamID:[0-9]+}", handler.GetTeamPrediction).Methods("GET")
	api.HandleFunc("/predictions/teams/{teamID:[0-9]+}/history", handler.GetPredictionHistory).Methods("GET")
	api.HandleFunc("/model", handler.GetModel).Methods("GET")

	// Jobs
	api.HandleFunc("/ingestion/refresh", handler.SubmitIncrementalRefresh).Methods("POST")
	api.HandleFunc("/ingestion/full", handler.SubmitFullIngestion).Methods("POST")
	api.HandleFunc("/ingestion/historical", handler.SubmitHistoricalIngestion).Methods("POST")
	api.HandleFunc("/ingestion/logs", handler.GetIngestionLogs).Methods("GET")
	api.HandleFunc("/train", handler.SubmitTraining).Methods("POST")
	api.HandleFunc("/jobs", handler.GetJobs).Methods("GET")
	api.HandleFunc("/jobs/{jobID}", handler.GetJob).Methods("GET")

	return CORSMiddleware(router)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server
func (s *Server) Start() error {
	accessLog.Info().Str("addr", s.addr).Msg("rest server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
