package agentstream

import (
	"context"
	"errors"
)

// ConnectionState is the lifecycle state of a workspace stream connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ErrNotConnected is returned when a send is attempted without a live transport.
var ErrNotConnected = errors.New("agentstream: not connected")

// ErrUnrecognized marks wire frames whose type is outside the known taxonomy.
// Callers log and drop the frame; decoding never fails the stream.
var ErrUnrecognized = errors.New("unrecognized frame")

// CommandKind enumerates outbound instructions for the agent backend.
type CommandKind string

const (
	CommandPrompt CommandKind = "prompt"
	CommandAbort  CommandKind = "abort"
)

// Command is an outbound instruction scoped to one session.
type Command struct {
	Kind      CommandKind
	SessionID string
	Text      string // prompt text, CommandPrompt only
}

// Transport is a single live connection to a workspace's agent backend.
// Recv blocks until the next raw frame arrives and returns the underlying
// error once the stream breaks, after which the transport is dead.
type Transport interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, cmd Command) error
	Close() error
}

// Dialer establishes a transport against a backend endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// Decoder turns raw wire frames into canonical events. A nil event with a
// nil error means the frame was recognized noise (heartbeats, connection
// acknowledgements) and carries nothing for consumers.
type Decoder interface {
	Decode(frame []byte) (Event, error)
}
