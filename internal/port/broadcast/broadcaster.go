// Package broadcast defines the port for pushing live events to attached
// clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every attached client. Delivery is
// best effort; a slow consumer is the implementation's problem, never the
// caller's.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
