package service

import (
	"context"
	"log/slog"

	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

// NotificationService fans notifications out to every configured provider.
// An allowlist of event sources scopes what actually goes out; an empty list
// means everything does.
type NotificationService struct {
	providers []notifier.Notifier
	allow     map[string]struct{}
}

// NewNotificationService wires the providers and the enabled event sources,
// e.g. "session.finished" or "stream.error". A nil or empty source list
// enables everything.
func NewNotificationService(providers []notifier.Notifier, enabledEvents []string) *NotificationService {
	allow := make(map[string]struct{}, len(enabledEvents))
	for _, src := range enabledEvents {
		allow[src] = struct{}{}
	}
	return &NotificationService{providers: providers, allow: allow}
}

// Notify delivers n to every provider. One provider failing does not stop
// the others; failures are logged and dropped.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if !s.enabled(n.Source) {
		return
	}
	if n.Level == "" {
		n.Level = notifier.LevelInfo
	}
	for _, p := range s.providers {
		if err := p.Send(ctx, n); err != nil {
			slog.Warn("notification send failed", "provider", p.Name(), "title", n.Title, "error", err)
			continue
		}
		slog.Debug("notification sent", "provider", p.Name(), "title", n.Title)
	}
}

func (s *NotificationService) enabled(source string) bool {
	if len(s.allow) == 0 {
		return true
	}
	_, ok := s.allow[source]
	return ok
}

// NotifierCount reports how many providers are wired.
func (s *NotificationService) NotifierCount() int {
	return len(s.providers)
}
