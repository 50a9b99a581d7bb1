package http

import (
	"net/http"

	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
)

// ConnectWorkspace handles POST /api/v1/workspaces/{id}/connect.
// Connecting an already-connected workspace is a no-op, so clients can call
// this freely on startup. The response reports the current stream state.
func (h *Handlers) ConnectWorkspace(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Workspaces.Connect(r.Context(), id); err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	st, err := h.Workspaces.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DisconnectWorkspace handles POST /api/v1/workspaces/{id}/disconnect.
func (h *Handlers) DisconnectWorkspace(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Workspaces.Disconnect(r.Context(), id); err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected", "workspace_id": id})
}

// WorkspaceStatus handles GET /api/v1/workspaces/{id}/status.
func (h *Handlers) WorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	st, err := h.Workspaces.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DebugStreams handles GET /api/v1/debug/streams. It dumps the stream state
// of every workspace for troubleshooting stuck connections.
func (h *Handlers) DebugStreams(w http.ResponseWriter, r *http.Request) {
	wsps, err := h.Workspaces.List(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	states := make([]workspace.Status, 0, len(wsps))
	for _, wsp := range wsps {
		st, err := h.Workspaces.Status(r.Context(), wsp.ID)
		if err != nil {
			continue
		}
		states = append(states, *st)
	}
	writeJSON(w, http.StatusOK, states)
}
