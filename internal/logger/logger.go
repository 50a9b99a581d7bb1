// Package logger provides structured logging setup for deckhand.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/deckhand-ai/deckhand/internal/config"
)

const defaultQueueDepth = 1024

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds the process logger: JSON records on stdout, tagged with the
// service name, with request IDs lifted from the context. When async mode is
// on, records pass through a bounded queue and the returned Closer must be
// closed on shutdown to flush it; otherwise the Closer is a no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, defaultQueueDepth)
		handler = async
		closer = async
	}

	log := slog.New(ContextHandler{Handler: handler})
	return log.With("service", cfg.Service), closer
}

// parseLevel maps a config level name to its slog level, defaulting to info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
