package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/deckhand-ai/deckhand/internal/adapter/otel"
	"github.com/deckhand-ai/deckhand/internal/adapter/ws"
	"github.com/deckhand-ai/deckhand/internal/domain"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
	"github.com/deckhand-ai/deckhand/internal/port/backend"
	"github.com/deckhand-ai/deckhand/internal/port/broadcast"
	"github.com/deckhand-ai/deckhand/internal/port/messagequeue"
	"github.com/deckhand-ai/deckhand/internal/resilience"
)

// workspaceConn is the supervisor's record of one workspace's stream.
// All fields are guarded by Supervisor.mu.
type workspaceConn struct {
	workspaceID string
	path        string
	endpoint    string // pinned endpoint; empty means resolve per attempt

	state     agentstream.ConnectionState
	transport agentstream.Transport
	cancel    context.CancelFunc
	backoff   *resilience.Backoff
	retry     *time.Timer
}

// Supervisor owns at most one live event stream per workspace. It dials
// through the configured transport, recovers from stream failures with capped
// exponential backoff, and routes decoded events to per-session handlers.
type Supervisor struct {
	dialer   agentstream.Dialer
	decoder  agentstream.Decoder
	resolver backend.Resolver
	launcher backend.Launcher
	hub      broadcast.Broadcaster
	queue    messagequeue.Queue
	metrics  *otel.Metrics

	// onUnattended fires when a session finishes a message while no handler
	// is registered for it, meaning nobody is watching the session.
	onUnattended func(workspaceID, sessionID string)

	// afterFunc schedules reconnect timers; tests replace it.
	afterFunc func(d time.Duration, f func()) *time.Timer

	maxBackoff time.Duration

	mu       sync.Mutex
	conns    map[string]*workspaceConn
	handlers map[string]agentstream.Handler
	statuses map[string]session.AgentStatus
}

// NewSupervisor creates a Supervisor. maxBackoff caps the reconnect delay;
// zero or negative selects the 30s default. launcher, hub, queue, metrics,
// and onUnattended may all be nil to disable the respective side effects.
func NewSupervisor(
	dialer agentstream.Dialer,
	decoder agentstream.Decoder,
	resolver backend.Resolver,
	launcher backend.Launcher,
	hub broadcast.Broadcaster,
	queue messagequeue.Queue,
	metrics *otel.Metrics,
	maxBackoff time.Duration,
	onUnattended func(workspaceID, sessionID string),
) *Supervisor {
	return &Supervisor{
		dialer:       dialer,
		decoder:      decoder,
		resolver:     resolver,
		launcher:     launcher,
		hub:          hub,
		queue:        queue,
		metrics:      metrics,
		onUnattended: onUnattended,
		afterFunc:    time.AfterFunc,
		conns:        make(map[string]*workspaceConn),
		handlers:     make(map[string]agentstream.Handler),
		statuses:     make(map[string]session.AgentStatus),
		maxBackoff:   maxBackoff,
	}
}

// Connect establishes the workspace's event stream if none is live. Calling
// it on a workspace that is already connected or connecting is a no-op.
// A missing backend is reported as an error without scheduling retries, so
// the next user interaction can try again or trigger a launch.
func (s *Supervisor) Connect(ctx context.Context, wsp workspace.Workspace) error {
	s.mu.Lock()
	c, ok := s.conns[wsp.ID]
	if ok {
		switch c.state {
		case agentstream.StateConnected, agentstream.StateConnecting:
			s.mu.Unlock()
			return nil
		case agentstream.StateReconnecting:
			// A retry timer is already pending; promote to an immediate
			// attempt instead of stacking a second dial.
			if c.retry != nil {
				c.retry.Stop()
				c.retry = nil
			}
		}
	} else {
		c = &workspaceConn{
			workspaceID: wsp.ID,
			path:        wsp.Path,
			endpoint:    wsp.Endpoint,
			state:       agentstream.StateDisconnected,
			backoff:     resilience.NewBackoff(s.maxBackoff),
		}
		s.conns[wsp.ID] = c
	}
	c.state = agentstream.StateConnecting
	s.mu.Unlock()
	s.broadcastState(c.workspaceID, agentstream.StateConnecting, 0)

	err := s.dial(ctx, c, true)
	if err == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.state != agentstream.StateConnecting {
		// Disconnected while we were dialing.
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		// No backend to talk to. Stay down until the next interaction.
		c.state = agentstream.StateDisconnected
		return err
	}
	s.scheduleReconnect(c)
	return err
}

// dial resolves the endpoint, opens the transport, and installs the read
// loop. allowLaunch permits starting a backend process; automatic reconnects
// never launch, only explicit user interactions do.
func (s *Supervisor) dial(ctx context.Context, c *workspaceConn, allowLaunch bool) error {
	endpoint := c.endpoint
	if endpoint == "" {
		var err error
		endpoint, err = s.resolver.Resolve(ctx, c.path)
		if err != nil && allowLaunch && s.launcher != nil && errors.Is(err, domain.ErrNotFound) {
			endpoint, err = s.launcher.EnsureRunning(ctx, c.path)
		}
		if err != nil {
			return err
		}
	}

	// The stream lives as long as this context; cancellation unblocks Recv.
	loopCtx, cancel := context.WithCancel(context.Background())
	tr, err := s.dialer.Dial(loopCtx, endpoint)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	if c.state != agentstream.StateConnecting {
		s.mu.Unlock()
		cancel()
		_ = tr.Close()
		return nil
	}
	c.transport = tr
	c.cancel = cancel
	c.state = agentstream.StateConnected
	c.backoff.Reset()
	s.mu.Unlock()

	slog.Info("workspace stream connected",
		"workspace_id", c.workspaceID,
		"endpoint", endpoint,
	)
	if s.metrics != nil {
		s.metrics.ActiveStreams.Add(context.Background(), 1)
	}
	s.broadcastState(c.workspaceID, agentstream.StateConnected, 0)

	go s.readLoop(loopCtx, c, tr)
	return nil
}

// readLoop pulls frames until the transport fails or the stream is torn
// down. It owns event decoding and routing for this connection.
func (s *Supervisor) readLoop(ctx context.Context, c *workspaceConn, tr agentstream.Transport) {
	for {
		frame, err := tr.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate teardown
			}
			s.onStreamFailure(c, err)
			return
		}
		if s.metrics != nil {
			s.metrics.FramesReceived.Add(ctx, 1)
		}

		ev, err := s.decoder.Decode(frame)
		if err != nil {
			if s.metrics != nil {
				s.metrics.FramesDropped.Add(ctx, 1)
			}
			slog.Debug("dropping frame",
				"workspace_id", c.workspaceID,
				"error", err,
			)
			continue
		}
		if ev == nil {
			continue
		}
		if s.metrics != nil {
			s.metrics.EventsDecoded.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", eventKind(ev))))
		}
		s.dispatch(c, ev)
	}
}

// dispatch routes one event to its session handler and maintains the status
// cache. Events arriving after a disconnect are dropped.
func (s *Supervisor) dispatch(c *workspaceConn, ev agentstream.Event) {
	sessionID := ev.Session()

	s.mu.Lock()
	if c.state != agentstream.StateConnected {
		s.mu.Unlock()
		return
	}
	if st, ok := ev.(agentstream.StatusChanged); ok && st.SessionID != "" {
		s.statuses[st.SessionID] = st.Status
	}
	var h agentstream.Handler
	if sessionID != "" {
		h = s.handlers[sessionID]
	}
	s.mu.Unlock()

	if st, ok := ev.(agentstream.StatusChanged); ok {
		s.broadcastEvent(ws.EventSessionStatus, ws.SessionStatusPayload{
			SessionID: st.SessionID,
			Status:    string(st.Status),
		})
		s.publish(messagequeue.SubjectSessionStatus, messagequeue.SessionStatusPayload{
			SessionID: st.SessionID,
			Status:    string(st.Status),
		})
	}

	if h != nil {
		h.HandleEvent(ev)
		return
	}
	if sessionID == "" {
		return
	}
	// Nobody is watching this session. A completed message here means the
	// agent finished while unattended.
	if _, done := ev.(agentstream.MessageComplete); done && s.onUnattended != nil {
		s.onUnattended(c.workspaceID, sessionID)
	}
}

// onStreamFailure transitions a live connection into reconnecting and
// schedules the next attempt.
func (s *Supervisor) onStreamFailure(c *workspaceConn, err error) {
	s.mu.Lock()
	if c.state != agentstream.StateConnected {
		s.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	tr := c.transport
	c.transport = nil
	delay := s.scheduleReconnect(c)
	attempts := c.backoff.Attempts()
	s.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	slog.Warn("workspace stream lost",
		"workspace_id", c.workspaceID,
		"error", err,
		"retry_in", delay,
		"attempt", attempts,
	)
	if s.metrics != nil {
		s.metrics.ActiveStreams.Add(context.Background(), -1)
	}
}

// scheduleReconnect arms the retry timer for the next backoff delay and
// returns that delay. Called with s.mu held.
func (s *Supervisor) scheduleReconnect(c *workspaceConn) time.Duration {
	if c.retry != nil {
		c.retry.Stop()
	}
	delay := c.backoff.Next()
	c.state = agentstream.StateReconnecting
	c.retry = s.afterFunc(delay, func() { s.reconnect(c) })
	if s.metrics != nil {
		s.metrics.Reconnects.Add(context.Background(), 1)
	}
	go s.broadcastState(c.workspaceID, agentstream.StateReconnecting, c.backoff.Attempts())
	return delay
}

// reconnect is the retry timer callback. It re-dials without launching; a
// backend that went away comes back through user interaction, not timers.
func (s *Supervisor) reconnect(c *workspaceConn) {
	s.mu.Lock()
	if c.state != agentstream.StateReconnecting {
		s.mu.Unlock()
		return // disconnected while the timer was pending
	}
	c.retry = nil
	c.state = agentstream.StateConnecting
	s.mu.Unlock()

	if err := s.dial(context.Background(), c, false); err != nil {
		s.mu.Lock()
		if c.state == agentstream.StateConnecting {
			delay := s.scheduleReconnect(c)
			slog.Debug("reconnect attempt failed",
				"workspace_id", c.workspaceID,
				"error", err,
				"retry_in", delay,
			)
		}
		s.mu.Unlock()
	}
}

// Disconnect tears the workspace stream down. When it returns, no further
// events are delivered and no reconnect attempt will fire until Connect is
// called again.
func (s *Supervisor) Disconnect(workspaceID string) {
	s.mu.Lock()
	c, ok := s.conns[workspaceID]
	if !ok {
		s.mu.Unlock()
		return
	}
	wasConnected := c.state == agentstream.StateConnected
	c.state = agentstream.StateDisconnected
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	tr := c.transport
	c.transport = nil
	c.backoff.Reset()
	s.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	slog.Info("workspace stream disconnected", "workspace_id", workspaceID)
	if wasConnected && s.metrics != nil {
		s.metrics.ActiveStreams.Add(context.Background(), -1)
	}
	s.broadcastState(workspaceID, agentstream.StateDisconnected, 0)
}

// Send forwards a command over the workspace's live transport. Commands for
// workspaces that are not connected fail with agentstream.ErrNotConnected.
func (s *Supervisor) Send(ctx context.Context, workspaceID string, cmd agentstream.Command) error {
	s.mu.Lock()
	var tr agentstream.Transport
	if c, ok := s.conns[workspaceID]; ok && c.state == agentstream.StateConnected {
		tr = c.transport
	}
	s.mu.Unlock()

	if tr == nil {
		return agentstream.ErrNotConnected
	}
	return tr.Send(ctx, cmd)
}

// RegisterHandler routes the session's events to h. A second registration
// for the same session replaces the first.
func (s *Supervisor) RegisterHandler(sessionID string, h agentstream.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[sessionID] = h
}

// UnregisterHandler stops routing the session's events. Unknown sessions are
// a no-op.
func (s *Supervisor) UnregisterHandler(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, sessionID)
}

// ForgetSession drops both the handler and the cached agent status, used
// when a session is deleted.
func (s *Supervisor) ForgetSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, sessionID)
	delete(s.statuses, sessionID)
}

// CurrentStatus returns the last observed agent status for the session.
func (s *Supervisor) CurrentStatus(sessionID string) (session.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[sessionID]
	return st, ok
}

// Statuses returns a copy of the agent status cache.
func (s *Supervisor) Statuses() map[string]session.AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]session.AgentStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

// IsConnected reports whether the workspace has a live stream.
func (s *Supervisor) IsConnected(workspaceID string) bool {
	return s.ConnectionState(workspaceID) == agentstream.StateConnected
}

// ConnectionState returns the workspace's stream state, Disconnected for
// workspaces the supervisor has never seen.
func (s *Supervisor) ConnectionState(workspaceID string) agentstream.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[workspaceID]; ok {
		return c.state
	}
	return agentstream.StateDisconnected
}

// Shutdown disconnects every workspace stream.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Disconnect(id)
	}
}

func (s *Supervisor) broadcastState(workspaceID string, state agentstream.ConnectionState, attempts int) {
	s.broadcastEvent(ws.EventConnectionState, ws.ConnectionStatePayload{
		WorkspaceID: workspaceID,
		State:       string(state),
		Attempts:    attempts,
	})
	s.publish(messagequeue.SubjectConnectionState, messagequeue.ConnectionStatePayload{
		WorkspaceID: workspaceID,
		State:       string(state),
		Attempts:    attempts,
	})
}

func (s *Supervisor) broadcastEvent(eventType string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(context.Background(), eventType, payload)
}

func (s *Supervisor) publish(subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(context.Background(), subject, data); err != nil {
		slog.Debug("queue publish failed", "subject", subject, "error", err)
	}
}

// eventKind labels events for metrics.
func eventKind(ev agentstream.Event) string {
	switch ev.(type) {
	case agentstream.MessageStart:
		return "message_start"
	case agentstream.PartDelta:
		return "part_delta"
	case agentstream.PartUpdated:
		return "part_updated"
	case agentstream.MessageComplete:
		return "message_complete"
	case agentstream.StatusChanged:
		return "status_changed"
	case agentstream.SessionError:
		return "session_error"
	case agentstream.SessionIdle:
		return "session_idle"
	default:
		return "unknown"
	}
}
