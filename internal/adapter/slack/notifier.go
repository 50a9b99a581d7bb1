// Package slack implements a notifier.Notifier for Slack webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

const providerName = "slack"

// Notifier delivers notifications as Block Kit messages through a Slack
// incoming webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier builds a notifier for the given webhook URL. An empty URL is
// allowed; Send then reports ErrNotConfigured.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
	}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{
		RichFormatting: true,
		Persistent:     false,
	}
}

// Wire types for the Block Kit payload.
type message struct {
	Blocks []block `json:"blocks"`
}

type block struct {
	Type string      `json:"type"`
	Text *textObject `json:"text,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	return n.post(ctx, buildMessage(notification))
}

// buildMessage renders a header with the level tag, the body as markdown,
// and an optional muted trailer pointing at the originating session.
func buildMessage(notification notifier.Notification) message {
	msg := message{
		Blocks: []block{
			{Type: "header", Text: &textObject{
				Type: "plain_text",
				Text: fmt.Sprintf("%s %s", levelTag(notification.Level), notification.Title),
			}},
			{Type: "section", Text: &textObject{
				Type: "mrkdwn",
				Text: notification.Message,
			}},
		},
	}
	if line := contextLine(notification); line != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type: "context",
			Text: &textObject{Type: "mrkdwn", Text: line},
		})
	}
	return msg
}

// post marshals the payload and delivers it, surfacing 4xx/5xx responses
// as errors carrying the response body.
func (n *Notifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// contextLine renders the source and originating workspace/session as a
// muted trailer so the recipient can jump to the right session.
func contextLine(n notifier.Notification) string {
	if n.Source == "" && n.SessionID == "" {
		return ""
	}
	line := fmt.Sprintf("_Source: %s_", n.Source)
	if n.WorkspaceID != "" {
		line += fmt.Sprintf(" | workspace `%s`", n.WorkspaceID)
	}
	if n.SessionID != "" {
		line += fmt.Sprintf(" | session `%s`", n.SessionID)
	}
	return line
}

// levelTag is the bracketed prefix on the header line. Slack plain_text
// headers cannot carry color, so the tag stands in for it.
func levelTag(level string) string {
	switch level {
	case notifier.LevelSuccess:
		return "[OK]"
	case notifier.LevelError:
		return "[ERROR]"
	case notifier.LevelWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}
