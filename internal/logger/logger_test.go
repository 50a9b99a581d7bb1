package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/deckhand-ai/deckhand/internal/config"
)

func TestNewSyncAndAsync(t *testing.T) {
	for _, async := range []bool{false, true} {
		log, closer := New(config.Logging{Level: "debug", Service: "deckhand-test", Async: async})
		if log == nil {
			t.Fatalf("async=%v: nil logger", async)
		}
		closer.Close()
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		if got := parseLevel(name); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("bare context carries request ID %q", got)
	}
	ctx = WithRequestID(ctx, "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Errorf("RequestID = %q, want req-42", got)
	}
}

func TestContextHandlerStampsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithRequestID(context.Background(), "req-7")
	log.InfoContext(ctx, "with id")
	log.InfoContext(context.Background(), "without id")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("emitted %d lines, want 2", len(lines))
	}

	var first, second map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("first line: %v", err)
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("second line: %v", err)
	}

	if first["request_id"] != "req-7" {
		t.Errorf("request_id = %v, want req-7", first["request_id"])
	}
	if _, ok := second["request_id"]; ok {
		t.Error("record without a context ID should carry no request_id")
	}
}
