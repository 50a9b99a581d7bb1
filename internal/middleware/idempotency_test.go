package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/deckhand-ai/deckhand/internal/middleware"
)

// memKV is an in-memory stand-in for a JetStream bucket. Only Get and Put
// carry behavior; the rest of the interface is stubbed.
type memKV struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{records: make(map[string][]byte)}
}

func (m *memKV) set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = value
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[key]
	return ok
}

func (m *memKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.records[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &memEntry{key: key, value: v}, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.set(key, value)
	return 1, nil
}

func (m *memKV) Bucket() string { return "mem" }
func (m *memKV) Create(_ context.Context, _ string, _ []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	return 0, nil
}
func (m *memKV) Update(_ context.Context, _ string, _ []byte, _ uint64) (uint64, error) {
	return 0, nil
}
func (m *memKV) PutString(_ context.Context, _, _ string) (uint64, error)             { return 0, nil }
func (m *memKV) Delete(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error { return nil }
func (m *memKV) Purge(_ context.Context, _ string, _ ...jetstream.KVDeleteOpt) error  { return nil }
func (m *memKV) GetRevision(_ context.Context, _ string, _ uint64) (jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *memKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) { return nil, nil }
func (m *memKV) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *memKV) ListKeysFiltered(_ context.Context, _ ...string) (jetstream.KeyLister, error) {
	return nil, nil
}
func (m *memKV) History(_ context.Context, _ string, _ ...jetstream.WatchOpt) ([]jetstream.KeyValueEntry, error) {
	return nil, nil
}
func (m *memKV) Watch(_ context.Context, _ string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *memKV) WatchAll(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *memKV) WatchFiltered(_ context.Context, _ []string, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return nil, nil
}
func (m *memKV) Status(_ context.Context) (jetstream.KeyValueStatus, error)      { return nil, nil }
func (m *memKV) PurgeDeletes(_ context.Context, _ ...jetstream.KVPurgeOpt) error { return nil }

type memEntry struct {
	key   string
	value []byte
}

func (e *memEntry) Bucket() string                  { return "mem" }
func (e *memEntry) Key() string                     { return e.key }
func (e *memEntry) Value() []byte                   { return e.value }
func (e *memEntry) Revision() uint64                { return 1 }
func (e *memEntry) Created() time.Time              { return time.Time{} }
func (e *memEntry) Delta() uint64                   { return 0 }
func (e *memEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

// countingHandler numbers each invocation so replays are distinguishable
// from fresh runs by body content.
func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"run":%d}`, *calls)
	})
}

func sendWithKey(h http.Handler, method, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/sessions/s1/messages", http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyWithoutKeyRunsEveryTime(t *testing.T) {
	calls := 0
	h := middleware.Idempotency(newMemKV())(countingHandler(&calls))

	sendWithKey(h, http.MethodPost, "")
	sendWithKey(h, http.MethodPost, "")

	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	kv := newMemKV()
	h := middleware.Idempotency(kv)(countingHandler(&calls))

	first := sendWithKey(h, http.MethodPost, "send-abc")
	if first.Code != http.StatusAccepted {
		t.Fatalf("first request: got %d, want 202", first.Code)
	}
	if !kv.has("send-abc") {
		t.Fatal("response was not stored under its key")
	}

	second := sendWithKey(h, http.MethodPost, "send-abc")
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusAccepted {
		t.Errorf("replay status = %d, want 202", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replay body = %q, want %q", second.Body.String(), first.Body.String())
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("replay Content-Type = %q, want application/json", ct)
	}
}

func TestIdempotencySkipsSafeMethods(t *testing.T) {
	calls := 0
	kv := newMemKV()
	h := middleware.Idempotency(kv)(countingHandler(&calls))

	sendWithKey(h, http.MethodGet, "read-key")
	sendWithKey(h, http.MethodGet, "read-key")

	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
	if kv.has("read-key") {
		t.Error("GET response should not be stored")
	}
}

func TestIdempotencyKeysAreIndependent(t *testing.T) {
	calls := 0
	h := middleware.Idempotency(newMemKV())(countingHandler(&calls))

	sendWithKey(h, http.MethodPost, "key-one")
	sendWithKey(h, http.MethodPost, "key-two")

	if calls != 2 {
		t.Fatalf("handler ran %d times, want 2", calls)
	}
}

func TestIdempotencyCorruptRecordRerunsHandler(t *testing.T) {
	calls := 0
	kv := newMemKV()
	kv.set("bad-record", []byte("not json"))
	h := middleware.Idempotency(kv)(countingHandler(&calls))

	rec := sendWithKey(h, http.MethodPost, "bad-record")
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202 from the rerun handler", rec.Code)
	}
}
