// Package discord implements a notifier.Notifier for Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

const providerName = "discord"

// Notifier delivers notifications as embeds through a Discord incoming
// webhook.
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

// Wire types for the webhook payload, embeds only.
type webhookBody struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}
	return n.post(ctx, webhookBody{Embeds: []embed{buildEmbed(notification)}})
}

func buildEmbed(notification notifier.Notification) embed {
	e := embed{
		Title:       notification.Title,
		Description: notification.Message,
		Color:       levelColor(notification.Level),
	}
	if ft := footerText(notification); ft != "" {
		e.Footer = &embedFooter{Text: ft}
	}
	return e
}

// post marshals the payload and delivers it. Discord answers 204 on
// success; anything 4xx/5xx comes back as an error carrying the response
// body.
func (n *Notifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// footerText carries the source and originating session so the embed links
// back to what fired it.
func footerText(n notifier.Notification) string {
	if n.Source == "" {
		return ""
	}
	text := "Source: " + n.Source
	if n.SessionID != "" {
		text += " | session " + n.SessionID
	}
	return text
}

// levelColor maps notification levels onto Discord's embed accent colors.
func levelColor(level string) int {
	switch level {
	case notifier.LevelSuccess:
		return 0x2ECC71 // green
	case notifier.LevelError:
		return 0xE74C3C // red
	case notifier.LevelWarning:
		return 0xF39C12 // orange
	default:
		return 0x3498DB // blue
	}
}
