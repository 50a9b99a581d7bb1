package opencode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
)

// SocketDialer establishes bidirectional websocket transports for backend
// servers that speak the flat frame protocol.
type SocketDialer struct {
	Client *http.Client
}

var _ agentstream.Dialer = (*SocketDialer)(nil)

func (d *SocketDialer) Dial(ctx context.Context, endpoint string) (agentstream.Transport, error) {
	conn, _, err := websocket.Dial(ctx, strings.TrimSuffix(endpoint, "/")+"/event", &websocket.DialOptions{
		HTTPClient: d.Client,
	})
	if err != nil {
		return nil, fmt.Errorf("opencode: dial socket: %w", err)
	}
	// Tool output frames routinely exceed the library's 32KB default.
	conn.SetReadLimit(1 << 20)
	return &socketTransport{conn: conn}, nil
}

type socketTransport struct {
	conn *websocket.Conn
}

func (t *socketTransport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("opencode: socket read: %w", err)
	}
	return data, nil
}

func (t *socketTransport) Send(ctx context.Context, cmd agentstream.Command) error {
	if cmd.SessionID == "" {
		return fmt.Errorf("opencode: command without session id")
	}
	frame := map[string]string{
		"command":   string(cmd.Kind),
		"sessionId": cmd.SessionID,
	}
	if cmd.Kind == agentstream.CommandPrompt {
		frame["text"] = cmd.Text
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("opencode: marshal command: %w", err)
	}
	if err := t.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("opencode: socket write: %w", err)
	}
	return nil
}

func (t *socketTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}
