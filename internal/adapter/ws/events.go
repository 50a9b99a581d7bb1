package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
)

// Event type constants for WebSocket messages.
const (
	EventHello           = "hello"
	EventConnectionState = "connection.state"
	EventSessionStatus   = "session.status"
	EventSessionError    = "session.error"
	EventStreamDelta     = "stream.delta"
	EventStreamPart      = "stream.part"
	EventMessageCreated  = "message.created"
)

// HelloPayload greets a freshly connected client.
type HelloPayload struct {
	ServerTime time.Time `json:"server_time"`
}

// ConnectionStatePayload is broadcast when a workspace stream changes state.
type ConnectionStatePayload struct {
	WorkspaceID string `json:"workspace_id"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts,omitempty"`
}

// SessionStatusPayload is broadcast when an agent reports a status change.
type SessionStatusPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SessionErrorPayload is broadcast when a session's run fails.
type SessionErrorPayload struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// StreamDeltaPayload carries one appended text fragment of an in-flight
// response.
type StreamDeltaPayload struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	PartID    string `json:"part_id"`
	Text      string `json:"text"`
}

// StreamPartPayload carries the full state of a part after an update, used
// for tool progress and reasoning blocks.
type StreamPartPayload struct {
	SessionID string            `json:"session_id"`
	Part      conversation.Part `json:"part"`
}

// MessageCreatedPayload is broadcast when a message lands in a conversation,
// both optimistic user messages and finalized assistant responses.
type MessageCreatedPayload struct {
	Message conversation.Message `json:"message"`
}

// BroadcastEvent marshals a typed event payload and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
