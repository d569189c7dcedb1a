// Package ws implements the WebSocket adapter for real-time client updates.
// Clients connect to one conversation channel and receive the progress events
// published for it.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
}

// conn wraps a single WebSocket connection subscribed to one conversation.
// An empty conversationID subscribes to all conversations.
type conn struct {
	ws             *websocket.Conn
	conversationID string
	cancel         context.CancelFunc
}

// Hub manages active WebSocket connections keyed by conversation.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection. The conversation
// channel is chosen with the ?conversation= query parameter; without it the
// client receives events for every conversation.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		ws:             ws,
		conversationID: r.URL.Query().Get("conversation"),
		cancel:         cancel,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "conversation", c.conversationID)

	// Read loop to detect disconnects and consume pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// BroadcastEvent sends a typed event to every client watching the given
// conversation. Failures only drop the offending connection.
func (h *Hub) BroadcastEvent(ctx context.Context, conversationID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("websocket payload marshal failed", "type", eventType, "error", err)
		return
	}

	data, err := json.Marshal(Message{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        body,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		slog.Error("websocket marshal failed", "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.conversationID != "" && c.conversationID != conversationID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
