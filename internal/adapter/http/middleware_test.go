package http

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersStampsEveryResponse(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for name := range hardeningHeaders {
		if rec.Header().Get(name) == "" {
			t.Errorf("response missing %s", name)
		}
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestCORSAnswersPreflightInline(t *testing.T) {
	reached := false
	h := CORS("http://localhost:5173")(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/workspaces", http.NoBody))

	if reached {
		t.Error("preflight request reached the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q, want the configured origin", got)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("preflight missing Allow-Headers")
	}
}

func TestCORSPassesNonPreflightThrough(t *testing.T) {
	h := CORS("http://localhost:5173")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want the handler's 418", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("normal request missing Allow-Origin")
	}
}

// hijackRecorder adds a Hijacker implementation so delegation is observable.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusRecorderDelegatesHijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	sr := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

	if _, _, err := sr.Hijack(); err != nil {
		t.Fatalf("Hijack: %v", err)
	}
	if !inner.hijacked {
		t.Error("Hijack did not reach the wrapped writer")
	}
}

func TestStatusRecorderHijackWithoutSupport(t *testing.T) {
	sr := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := sr.Hijack(); err == nil {
		t.Fatal("Hijack succeeded against a writer without Hijacker support")
	}
}

func TestStatusRecorderFlushAndStatus(t *testing.T) {
	inner := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

	sr.WriteHeader(http.StatusAccepted)
	sr.Flush()

	if sr.status != http.StatusAccepted {
		t.Errorf("recorded status = %d, want 202", sr.status)
	}
	if !inner.Flushed {
		t.Error("Flush did not reach the wrapped writer")
	}
}
