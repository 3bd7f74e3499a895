// Package notify pushes signal change events to websocket watchers.
// Consumers use the feed to invalidate their polled map view; events carry
// no payload beyond the change type and signal id, and are never replayed.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/signalfield/signalfield/internal/pkg/ctxlog"
)

const (
	writeTimeout = 5 * time.Second
	// sendBuffer bounds per-client queues; slow consumers are dropped
	// rather than blocking the broadcast path.
	sendBuffer = 16
)

// Event is a signal change notification.
type Event struct {
	Type     string `json:"type"`
	SignalID string `json:"id"`
}

// Hub fans signal change events out to connected watchers.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}

	closeOnce sync.Once
	closed    chan struct{}

	allowedOrigins []string
}

// NewHub creates an empty hub.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:        make(map[chan []byte]struct{}),
		closed:         make(chan struct{}),
		allowedOrigins: allowedOrigins,
	}
}

// Close disconnects all watchers. Further connections are refused.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// Broadcast queues a change event for every connected watcher. Watchers
// that cannot keep up lose events; the feed is advisory, not a log.
func (h *Hub) Broadcast(eventType, signalID string) {
	payload, err := json.Marshal(Event{Type: eventType, SignalID: signalID})
	if err != nil {
		slog.Error("marshal change event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Watchers returns the number of connected clients.
func (h *Hub) Watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams change events
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		ctxlog.FromContext(r.Context()).Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case payload := <-ch:
			if err := h.write(ctx, conn, payload); err != nil {
				return
			}
		case <-h.closed:
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
