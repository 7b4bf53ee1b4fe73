// Package broadcast pushes pipeline notifications to websocket clients.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/pipeline"
)

const writeTimeout = 200 * time.Millisecond

// Message is the JSON envelope sent to clients.
type Message struct {
	Type string         `json:"type"`
	Data pipeline.Event `json:"data"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub fans notifications out to every connected client. New clients first
// receive the latest state notifications (step count, BPM) so a UI can draw
// immediately. It is a pipeline.Listener and an http.Handler.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	latest  map[pipeline.EventKind][]byte

	sent    atomic.Uint64
	evicted atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Component("broadcast")
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
		latest:  make(map[pipeline.EventKind][]byte),
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	for _, b := range h.latest {
		if err := c.write(b); err != nil {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.remove(c)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// OnEvent implements pipeline.Listener.
func (h *Hub) OnEvent(_ context.Context, e pipeline.Event) error {
	b, err := json.Marshal(Message{Type: string(e.Kind()), Data: e})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", e.Kind(), err)
	}
	switch e.Kind() {
	case pipeline.KindStepCountUpdated, pipeline.KindBpmUpdated:
		h.mu.Lock()
		h.latest[e.Kind()] = b
		h.mu.Unlock()
	}
	h.broadcast(b)
	return nil
}

func (h *Hub) broadcast(b []byte) {
	for _, c := range h.snapshot() {
		if err := c.write(b); err != nil {
			h.evicted.Add(1)
			h.logger.Debug("dropping websocket client", logging.Fields{"error": err.Error()})
			_ = c.conn.Close()
			h.remove(c)
			continue
		}
		h.sent.Add(1)
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		c.mu.Unlock()
		_ = c.conn.Close()
		h.remove(c)
	}
}
