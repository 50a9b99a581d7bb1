package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/deckhand-ai/deckhand/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
//
// The KV bucket backs idempotent message sends (Idempotency-Key header);
// pass nil to disable replay protection, e.g. in tests.
func MountRoutes(r chi.Router, h *Handlers, kv jetstream.KeyValue) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workspaces
		r.Get("/workspaces", handleList(h.Workspaces.List))
		r.Post("/workspaces", handleCreate(h.Limits.bodyLimit(), h.Workspaces.Create))
		r.Get("/workspaces/{id}", handleGet(h.Workspaces.Get, "workspace not found"))
		r.Put("/workspaces/{id}", handleUpdate(h.Limits.bodyLimit(), h.Workspaces.Update, "workspace not found"))
		r.Delete("/workspaces/{id}", handleDelete(h.Workspaces.Delete, "workspace not found"))

		// Stream lifecycle (nested under workspaces)
		r.Post("/workspaces/{id}/connect", h.ConnectWorkspace)
		r.Post("/workspaces/{id}/disconnect", h.DisconnectWorkspace)
		r.Get("/workspaces/{id}/status", h.WorkspaceStatus)

		// Sessions (nested under workspaces + direct access)
		r.Get("/workspaces/{id}/sessions", handleListByParam("id", h.Sessions.List, "workspace not found"))
		r.Post("/workspaces/{id}/sessions", h.CreateSession)
		r.Get("/sessions/{id}", handleGet(h.Sessions.Get, "session not found"))
		r.Delete("/sessions/{id}", handleDelete(h.Sessions.Delete, "session not found"))

		// Conversation
		r.Get("/sessions/{id}/messages", handleListByParam("id", h.Sessions.Messages, "session not found"))
		if kv != nil {
			r.With(middleware.Idempotency(kv)).Post("/sessions/{id}/messages", h.SendSessionMessage)
		} else {
			r.Post("/sessions/{id}/messages", h.SendSessionMessage)
		}
		r.Post("/sessions/{id}/cancel", h.CancelSession)

		// Live stream view
		r.Post("/sessions/{id}/attach", h.AttachSession)
		r.Post("/sessions/{id}/detach", h.DetachSession)
		r.Get("/sessions/{id}/stream", h.SessionStreamState)
		r.Get("/sessions/{id}/agent", h.SessionAgentStatus)

		// Diagnostics (requires DECKHAND_ENV=development)
		r.Route("/debug", func(r chi.Router) {
			r.Use(middleware.DevModeOnly)
			r.Get("/streams", h.DebugStreams)
		})
	})
}
