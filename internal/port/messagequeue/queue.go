// Package messagequeue defines the outbound event bus port: the queue
// interface, the subjects deckhand publishes, and their payload schemas.
package messagequeue

import "context"

// Subjects deckhand publishes. Everything the web UI sees over WebSocket is
// mirrored here for external consumers such as notification bridges and
// activity loggers.
const (
	SubjectMessageCreated  = "deckhand.messages.created"  // message appended to a conversation
	SubjectSessionStatus   = "deckhand.sessions.status"   // agent status transition
	SubjectSessionFinished = "deckhand.sessions.finished" // agent finished while nobody was watching
	SubjectConnectionState = "deckhand.streams.state"     // workspace stream state change
)

// Handler consumes one message. The context carries request-scoped values
// such as the correlation ID when the publisher attached one.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port for publish/subscribe messaging.
type Queue interface {
	// Publish sends data on the subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for the subject and returns a function
	// that cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain stops intake, lets in-flight messages finish, then closes.
	Drain() error

	// Close tears the connection down immediately.
	Close() error

	// IsConnected reports whether the underlying connection is up.
	IsConnected() bool
}
