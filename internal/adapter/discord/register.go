package discord

import "github.com/deckhand-ai/deckhand/internal/port/notifier"

// The provider is registered under "discord" and reads one config key,
// webhook_url. A missing URL is not a construction error; Send reports
// ErrNotConfigured so a half-configured provider shows up in logs rather
// than failing startup.
func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config["webhook_url"]), nil
	})
}
