package middleware

import (
	"net/http"
	"os"
)

// envMode gates debug surfaces. Anything but "development" keeps them closed.
const envMode = "DECKHAND_ENV"

// DevModeOnly hides debug endpoints outside local development. The variable
// is read per request, so flipping it does not require a restart.
func DevModeOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if os.Getenv(envMode) != "development" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"endpoint requires DECKHAND_ENV=development"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
