// Package ws pushes live deckhand events to attached browser clients over a
// WebSocket fan-out hub.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/deckhand-ai/deckhand/internal/port/broadcast"
)

// writeWait bounds a single frame write so one stalled client cannot hold
// the hub's read lock indefinitely.
const writeWait = 5 * time.Second

// Message is the envelope every frame travels in.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans events out to every attached client. Traffic is almost entirely
// outbound; the read side exists to consume pings and notice disconnects.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// NewHub returns an empty hub ready to accept connections.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// client is one attached WebSocket peer.
type client struct {
	sock   *websocket.Conn
	remote string
	cancel context.CancelFunc
}

func (c *client) send(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.sock.Write(ctx, websocket.MessageText, data)
}

// HandleWS upgrades the request and attaches the connection to the hub. The
// client receives a hello frame first so it knows to fetch stream snapshots
// for whatever it missed while disconnected.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The request context dies when this handler returns; the socket must
	// not. Dropping the client cancels this context instead.
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{sock: sock, remote: r.RemoteAddr, cancel: cancel}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("websocket connected", "remote", c.remote)

	if data, err := json.Marshal(Message{Type: EventHello, Payload: mustRaw(HelloPayload{
		ServerTime: time.Now().UTC(),
	})}); err == nil {
		_ = c.send(ctx, data)
	}

	go h.readUntilClosed(ctx, c)
}

// readUntilClosed drains inbound frames until the peer goes away, then
// detaches the client.
func (h *Hub) readUntilClosed(ctx context.Context, c *client) {
	defer func() {
		h.drop(c)
		_ = c.sock.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := c.sock.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends one frame to every attached client. Clients whose write
// fails are detached once the pass completes.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	var dead []*client
	h.mu.RLock()
	for c := range h.clients {
		if err := c.send(ctx, data); err != nil {
			slog.Debug("websocket write failed", "remote", c.remote, "error", err)
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.drop(c)
	}
}

// ConnectionCount reports how many clients are attached.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("websocket disconnected", "remote", c.remote)
	}
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
