package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

// SubjectNotify carries notifier.Notification payloads for external
// consumers (desktop bridges, chat bots) that watch the stream.
const SubjectNotify = "deckhand.notify"

// Notifier publishes notifications onto the JetStream bus. Deliveries are
// persistent: a consumer that was down picks them up on reconnect.
type Notifier struct {
	queue *Queue
}

var _ notifier.Notifier = (*Notifier)(nil)

// NewNotifier wraps an established queue connection.
func NewNotifier(queue *Queue) *Notifier {
	return &Notifier{queue: queue}
}

func (n *Notifier) Name() string { return "nats" }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{
		RichFormatting: false,
		Persistent:     true,
	}
}

// Send publishes the notification as JSON on SubjectNotify.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.queue == nil {
		return notifier.ErrNotConfigured
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.queue.Publish(ctx, SubjectNotify, data)
}
