package opencode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
)

// SSEDialer establishes Server-Sent-Events transports against an OpenCode
// server. Events stream from GET /event; commands go out as HTTP POSTs.
type SSEDialer struct {
	// Client is used for the event stream and command requests. The event
	// request must not carry a client timeout or the stream would be cut off.
	Client *http.Client
}

var _ agentstream.Dialer = (*SSEDialer)(nil)

// Dial opens the event stream. The returned transport stays bound to ctx:
// cancelling it terminates the stream and unblocks any pending Recv.
func (d *SSEDialer) Dial(ctx context.Context, endpoint string) (agentstream.Transport, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/event", nil)
	if err != nil {
		return nil, fmt.Errorf("opencode: build event request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opencode: open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("opencode: event stream returned status %d", resp.StatusCode)
	}

	return &sseTransport{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   client,
		body:     resp.Body,
		reader:   bufio.NewReader(resp.Body),
	}, nil
}

type sseTransport struct {
	endpoint string
	client   *http.Client
	body     io.ReadCloser
	reader   *bufio.Reader
}

// Recv returns the next data frame. Blank lines and SSE comments are skipped.
func (t *sseTransport) Recv(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("opencode: event stream read: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			line = bytes.TrimSpace(rest)
		}
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// Send issues the command as an HTTP POST against the session endpoints.
func (t *sseTransport) Send(ctx context.Context, cmd agentstream.Command) error {
	if cmd.SessionID == "" {
		return fmt.Errorf("opencode: command without session id")
	}

	var (
		path string
		body io.Reader
	)
	switch cmd.Kind {
	case agentstream.CommandPrompt:
		payload, err := json.Marshal(map[string]any{
			"parts": []map[string]string{{"type": "text", "text": cmd.Text}},
		})
		if err != nil {
			return fmt.Errorf("opencode: marshal prompt: %w", err)
		}
		path = "/session/" + cmd.SessionID + "/message"
		body = bytes.NewReader(payload)
	case agentstream.CommandAbort:
		// Aborts must come back fast; prompts may legitimately block until
		// the run finishes on older servers, so only the abort gets a cap.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		path = "/session/" + cmd.SessionID + "/abort"
	default:
		return fmt.Errorf("opencode: unsupported command %q", cmd.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("opencode: build command request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("opencode: send %s: %w", cmd.Kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("opencode: %s returned status %d", cmd.Kind, resp.StatusCode)
	}
	return nil
}

// Close terminates the event stream, unblocking any pending Recv.
func (t *sseTransport) Close() error {
	return t.body.Close()
}
