// Package websocket pushes live-game and prediction events to connected
// clients.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fortuna/courtcast/internal/publisher"
)

// Server represents the WebSocket server
type Server struct {
	addr     string
	server   *http.Server
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server around hub. allowedOrigins
// empty accepts every origin.
func NewServer(addr string, hub *Hub, allowedOrigins []string) *Server {
	s := &Server{
		addr: addr,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/events", s.handle())
	mux.HandleFunc("/ws/games/live", s.handle(publisher.EventGamesLive))
	mux.HandleFunc("/ws/predictions", s.handle(publisher.EventPredictionsRefreshed))
	mux.HandleFunc("/ws/health", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the WebSocket server
func (s *Server) Start() error {
	s.hub.logger.Info().Str("addr", s.addr).Msg("websocket server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handle upgrades the connection and subscribes it to the given event
// types, or to every event when none are given
func (s *Server) handle(types ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.hub.logger.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}

		client := &Client{
			hub:  s.hub,
			conn: conn,
			send: make(chan []byte, 256),
		}
		if len(types) > 0 {
			client.types = make(map[string]bool, len(types))
			for _, t := range types {
				client.types[t] = true
			}
		}

		if !s.hub.join(client) {
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

// handleHealth returns WebSocket server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy", "clients": %d}`, s.hub.ClientCount())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
