package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Closer flushes buffered records on shutdown.
type Closer interface {
	Close()
}

// nopCloser backs synchronous mode, where there is nothing to flush.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler hands records to a background drain goroutine so request
// goroutines never block on log output. The queue is bounded; when it fills,
// records are dropped and counted instead of applying backpressure.
type AsyncHandler struct {
	next    slog.Handler
	queue   chan asyncItem
	done    chan struct{}
	dropped *atomic.Int64
}

// asyncItem pins the record to the handler variant that logged it, so
// attributes added through With or WithGroup survive the queue hop.
type asyncItem struct {
	target slog.Handler
	rec    slog.Record
}

// NewAsyncHandler wraps next with a queue of the given depth and starts the
// drain goroutine.
func NewAsyncHandler(next slog.Handler, depth int) *AsyncHandler {
	h := &AsyncHandler{
		next:    next,
		queue:   make(chan asyncItem, depth),
		done:    make(chan struct{}),
		dropped: &atomic.Int64{},
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for it := range h.queue {
		_ = it.target.Handle(context.Background(), it.rec)
	}
}

// Enabled defers to the wrapped handler so level filtering happens before
// the queue.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it if the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error {
	select {
	case h.queue <- asyncItem{target: h.next, rec: rec}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs clones the handler around an attributed inner handler. Clones
// share the queue and drop counter with the original.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), queue: h.queue, done: h.done, dropped: h.dropped}
}

// WithGroup clones the handler around a grouped inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), queue: h.queue, done: h.done, dropped: h.dropped}
}

// Dropped reports how many records overflowed the queue.
func (h *AsyncHandler) Dropped() int64 { return h.dropped.Load() }

// Close stops intake and blocks until every queued record has reached the
// wrapped handler. Close only the handler returned by NewAsyncHandler, not
// its clones.
func (h *AsyncHandler) Close() {
	close(h.queue)
	<-h.done
}
