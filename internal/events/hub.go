package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/swapgate/swapgate/internal/pkg/logger"
)

// Hub broadcasts committed events to connected websocket clients (relayers
// and indexers). Slow or dead connections are dropped, never waited on.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// Register adds a connection and starts its writer goroutine.
func (h *Hub) Register(conn *websocket.Conn) {
	ch := make(chan []byte, 64)

	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	go func() {
		defer h.Unregister(conn)
		for msg := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.conns[conn]
	if ok {
		delete(h.conns, conn)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
		_ = conn.Close()
	}
}

func (h *Hub) Publish(_ context.Context, ev *Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		select {
		case ch <- msg:
		default:
			// Buffer full, drop the client rather than stall settlement.
			delete(h.conns, conn)
			close(ch)
			_ = conn.Close()
		}
	}
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		delete(h.conns, conn)
		close(ch)
		_ = conn.Close()
	}
}
