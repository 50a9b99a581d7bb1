package http

import (
	"net/http"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
)

// CreateSession handles POST /api/v1/workspaces/{id}/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	workspaceID := urlParam(r, "id")
	req, ok := readJSON[session.CreateRequest](w, r, h.Limits.bodyLimit())
	if !ok {
		return
	}
	ses, err := h.Sessions.Create(r.Context(), workspaceID, req)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusCreated, ses)
}

// SendSessionMessage handles POST /api/v1/sessions/{id}/messages.
// The user message is recorded and broadcast immediately; the agent reply
// streams in over the WebSocket as the backend produces it.
func (h *Handlers) SendSessionMessage(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[conversation.SendMessageRequest](w, r, h.Limits.bodyLimit())
	if !ok {
		return
	}
	msg, err := h.Sessions.SendMessage(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}

// CancelSession handles POST /api/v1/sessions/{id}/cancel.
// Any partial reply is flushed as a message and the backend is asked to abort.
func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Sessions.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "session_id": id})
}

// AttachSession handles POST /api/v1/sessions/{id}/attach. It registers the
// session for live delivery and returns the in-flight snapshot so the caller
// can render without waiting for the next delta.
func (h *Handlers) AttachSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	state, err := h.Sessions.Attach(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DetachSession handles POST /api/v1/sessions/{id}/detach.
func (h *Handlers) DetachSession(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Detach(urlParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// SessionStreamState handles GET /api/v1/sessions/{id}/stream.
func (h *Handlers) SessionStreamState(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	state, ok := h.Sessions.StreamState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no stream state for session")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SessionAgentStatus handles GET /api/v1/sessions/{id}/agent.
func (h *Handlers) SessionAgentStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	status, ok := h.Sessions.AgentStatus(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no agent status for session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": string(status)})
}
