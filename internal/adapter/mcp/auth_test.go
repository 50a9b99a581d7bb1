package mcp_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dhmcp "github.com/deckhand-ai/deckhand/internal/adapter/mcp"
)

func authedRequest(t *testing.T, handler http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/sse", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("DisabledPassthrough", func(t *testing.T) {
		h := dhmcp.AuthMiddleware("", next)
		if rec := authedRequest(t, h, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with auth disabled, got %d", rec.Code)
		}
	})

	t.Run("MissingHeader", func(t *testing.T) {
		h := dhmcp.AuthMiddleware("sekrit", next)
		if rec := authedRequest(t, h, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without header, got %d", rec.Code)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		h := dhmcp.AuthMiddleware("sekrit", next)
		if rec := authedRequest(t, h, "Bearer wrong"); rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for wrong key, got %d", rec.Code)
		}
	})

	t.Run("BearerToken", func(t *testing.T) {
		h := dhmcp.AuthMiddleware("sekrit", next)
		if rec := authedRequest(t, h, "Bearer sekrit"); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for bearer token, got %d", rec.Code)
		}
	})

	t.Run("PlainAPIKey", func(t *testing.T) {
		h := dhmcp.AuthMiddleware("sekrit", next)
		if rec := authedRequest(t, h, "sekrit"); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for plain key, got %d", rec.Code)
		}
	})
}
