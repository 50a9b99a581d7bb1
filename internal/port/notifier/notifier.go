// Package notifier defines the outbound notification port and its provider
// registry.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Send when a provider is missing required
// settings, such as a webhook URL.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification levels. Providers map these onto their own severity styling.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification is one outbound message about session or stream activity.
type Notification struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	Level       string `json:"level"`
	Source      string `json:"source"` // event that produced it, e.g. "session.finished"
	WorkspaceID string `json:"workspace_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Capabilities describes what a provider can do with a notification.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	Persistent     bool `json:"persistent"` // deliveries survive consumer downtime
}

// Notifier delivers notifications through one provider.
type Notifier interface {
	// Name identifies the provider, e.g. "slack" or "nats".
	Name() string
	// Capabilities reports the provider's delivery features.
	Capabilities() Capabilities
	// Send delivers one notification.
	Send(ctx context.Context, n Notification) error
}
