package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

// Replays are keyed by the client-chosen Idempotency-Key header. The KV
// bucket's TTL bounds how long a key shields its response.
const (
	headerIdempotencyKey = "Idempotency-Key"
	maxReplayBody        = 1 << 20
)

// storedReply is the KV record for one completed request.
type storedReply struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Idempotency deduplicates mutating requests that carry an Idempotency-Key.
// The first request through runs the handler and stores its response in the
// JetStream bucket; repeats replay the stored response without running the
// handler again. Safe methods pass through untouched.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if entry, err := kv.Get(r.Context(), key); err == nil {
				if replay(w, entry.Value()) {
					return
				}
				slog.Warn("unreadable idempotency record, rerunning request", "key", key)
			}

			tee := newReplyCapture(w)
			next.ServeHTTP(tee, r)
			storeReply(r, kv, key, tee)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// replay writes a stored response. A false return means the record did not
// parse and the caller should run the handler instead.
func replay(w http.ResponseWriter, raw []byte) bool {
	var saved storedReply
	if err := json.Unmarshal(raw, &saved); err != nil {
		return false
	}
	for name, vals := range saved.Header {
		for _, v := range vals {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(saved.Status)
	_, _ = w.Write(saved.Body)
	return true
}

// storeReply persists the captured response, best effort. Oversized bodies
// are skipped; the repeat will simply run the handler again.
func storeReply(r *http.Request, kv jetstream.KeyValue, key string, tee *replyCapture) {
	if tee.buf.Len() > maxReplayBody {
		return
	}
	raw, err := json.Marshal(storedReply{
		Status: tee.status,
		Header: tee.Header().Clone(),
		Body:   tee.buf.Bytes(),
	})
	if err != nil {
		return
	}
	if _, err := kv.Put(r.Context(), key, raw); err != nil {
		slog.Warn("idempotency record not stored", "key", key, "error", err)
	}
}

// replyCapture tees the response so it can be stored after the handler ran.
type replyCapture struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func newReplyCapture(w http.ResponseWriter) *replyCapture {
	return &replyCapture{ResponseWriter: w, status: http.StatusOK}
}

func (c *replyCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *replyCapture) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}
