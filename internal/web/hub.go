package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/sonar-client/internal/metrics"
)

const writeWait = 100 * time.Millisecond

// Hub fans JSON messages out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Add registers conn and drains its reads until the client goes away.
func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(n))

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.Remove(conn)
				return
			}
		}
	}()
}

// Remove unregisters and closes conn.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		metrics.WebSocketClients.Set(float64(n))
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes v to every client. Clients that fail the write are
// dropped.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []*websocket.Conn
	)
	for _, c := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			if err := writeJSON(c, v); err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, c := range failed {
		slog.Debug("dropping websocket client", "remote", c.RemoteAddr())
		h.Remove(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.Close()
	}
	metrics.WebSocketClients.Set(0)
}

func writeJSON(c *websocket.Conn, v any) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}
