package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/metrics"
	"github.com/fortuna/courtcast/internal/publisher"
)

type message struct {
	eventType string
	data      []byte
}

// Hub tracks connected clients and fans events out to them. It implements
// publisher.Subscriber so a publisher.Fanout can feed it.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]struct{}

	logger zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		logger:     logging.Component("websocket"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.SetWebsocketClients(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetWebsocketClients(n)
			h.logger.Debug().Int("clients", n).Msg("client connected")

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for c := range h.clients {
				if !c.wants(msg.eventType) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				metrics.RecordWebsocketDrop()
				h.remove(c)
			}
		}
	}
}

// join registers c. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver implements publisher.Subscriber. It never blocks: when the hub
// is saturated the event is dropped.
func (h *Hub) Deliver(ev publisher.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", ev.Type).Msg("event not encodable")
		return
	}
	select {
	case h.broadcast <- message{eventType: ev.Type, data: data}:
	default:
		metrics.RecordWebsocketDrop()
		h.logger.Warn().Str("type", ev.Type).Msg("hub saturated, event dropped")
	}
}
