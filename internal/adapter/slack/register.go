package slack

import "github.com/deckhand-ai/deckhand/internal/port/notifier"

// The provider is registered under "slack" and reads one config key,
// webhook_url. Construction never fails; an absent URL surfaces later as
// ErrNotConfigured from Send.
func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config["webhook_url"]), nil
	})
}
