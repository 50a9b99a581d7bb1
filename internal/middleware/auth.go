package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/ready": true,
}

// Auth returns middleware that validates the API token against a bcrypt
// hash from configuration. An empty hash disables authentication.
//
// Regular requests carry the token in an Authorization: Bearer header.
// WebSocket upgrades at /ws pass it as a ?token= query parameter because
// browsers cannot set headers on WebSocket handshakes.
func Auth(tokenHash string) func(http.Handler) http.Handler {
	checker := newTokenChecker(tokenHash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// No token hash configured means auth is disabled.
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Skip auth for public paths.
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Path == "/ws" {
				token := r.URL.Query().Get("token")
				if token == "" {
					http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
					return
				}
				if !checker.valid(token) {
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			if !checker.valid(token) {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// tokenChecker verifies presented tokens against the configured bcrypt hash.
// A bcrypt comparison costs tens of milliseconds, so the token that matched
// is remembered and subsequent requests pay a constant-time compare instead.
type tokenChecker struct {
	hash []byte

	mu      sync.Mutex
	matched string
}

func newTokenChecker(hash string) *tokenChecker {
	return &tokenChecker{hash: []byte(hash)}
}

func (c *tokenChecker) valid(token string) bool {
	c.mu.Lock()
	cached := c.matched
	c.mu.Unlock()
	if cached != "" && subtle.ConstantTimeCompare([]byte(cached), []byte(token)) == 1 {
		return true
	}

	if bcrypt.CompareHashAndPassword(c.hash, []byte(token)) != nil {
		return false
	}

	c.mu.Lock()
	c.matched = token
	c.mu.Unlock()
	return true
}
