// Package middleware provides the HTTP middleware stack: bearer auth,
// per-client rate limiting, idempotent replays, and request tagging.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/deckhand-ai/deckhand/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags each request with a correlation ID. A client-supplied
// X-Request-ID is honored so IDs can span services; otherwise a fresh UUID
// is issued. The ID rides the request context and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
