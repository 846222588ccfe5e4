package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single delivery to one subscriber.
var writeWait = 5 * time.Second

// Hub fans recorded metrics out to websocket subscribers.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	ch      chan ExecutionMetric
}

// NewHub creates a Hub. Call Run to start delivery.
func NewHub() *Hub {
	return &Hub{
		clients: map[*websocket.Conn]bool{},
		ch:      make(chan ExecutionMetric, 16),
	}
}

// Run delivers queued metrics until ctx is done. Subscribers that fail a write
// or stall past writeWait are dropped.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case m := <-h.ch:
			h.deliver(m)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(m ExecutionMetric) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(m); err != nil {
			slog.Debug("dropping metrics subscriber", "error", err)
			h.Remove(conn)
			_ = conn.Close()
		}
	}
}

// Broadcast queues m for delivery. It never blocks; when the queue is full the
// metric is dropped.
func (h *Hub) Broadcast(m ExecutionMetric) {
	select {
	case h.ch <- m:
	default:
	}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Subscribers reports how many connections are attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
