// Package agentstream defines the agent event stream port: the canonical
// decoded event variants, the transport interface connections run over, and
// the dialer/decoder seams implemented by backend adapters.
package agentstream

import (
	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
)

// Event is one decoded stream event. The set of implementations is closed;
// consumers switch on the concrete type.
type Event interface {
	// Session returns the backend session identifier the event belongs to.
	Session() string
}

// MessageStart announces a new in-flight assistant message.
type MessageStart struct {
	SessionID string
	MessageID string
}

// PartDelta appends a fragment to one field of a message part.
type PartDelta struct {
	SessionID string
	MessageID string
	PartID    string
	Field     string // "text" unless the wire says otherwise
	Text      string
}

// PartUpdated carries a full snapshot of a message part.
type PartUpdated struct {
	SessionID string
	MessageID string
	Part      conversation.Part
}

// MessageComplete marks the in-flight assistant message as finished.
type MessageComplete struct {
	SessionID string
	MessageID string
}

// StatusChanged reports the agent's activity state for a session.
type StatusChanged struct {
	SessionID string
	Status    session.AgentStatus
}

// SessionError surfaces an application-level error from the backend.
type SessionError struct {
	SessionID string
	Message   string
}

// SessionIdle signals the backend considers the session quiescent.
type SessionIdle struct {
	SessionID string
}

func (e MessageStart) Session() string    { return e.SessionID }
func (e PartDelta) Session() string       { return e.SessionID }
func (e PartUpdated) Session() string     { return e.SessionID }
func (e MessageComplete) Session() string { return e.SessionID }
func (e StatusChanged) Session() string   { return e.SessionID }
func (e SessionError) Session() string    { return e.SessionID }
func (e SessionIdle) Session() string     { return e.SessionID }

// Handler consumes the ordered event stream of one session. Implementations
// must return quickly; delivery happens on the connection's read loop.
type Handler interface {
	HandleEvent(ev Event)
}
