package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deckhand-ai/deckhand/internal/adapter/otel"
	"github.com/deckhand-ai/deckhand/internal/adapter/ws"
	"github.com/deckhand-ai/deckhand/internal/domain"
	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
	"github.com/deckhand-ai/deckhand/internal/port/broadcast"
	"github.com/deckhand-ai/deckhand/internal/port/cache"
	"github.com/deckhand-ai/deckhand/internal/port/database"
	"github.com/deckhand-ai/deckhand/internal/port/messagequeue"
)

const (
	conversationTTL   = 30 * time.Second
	persistQueueDepth = 256
	persistOpTimeout  = 10 * time.Second
)

// SessionService manages agent sessions, their conversations, and the
// streaming turn lifecycle. It owns one Assembler per attached session and
// acts as the sink for everything those assemblers produce.
type SessionService struct {
	store   database.Store
	cache   cache.Cache
	sup     *Supervisor
	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	metrics *otel.Metrics

	mu         sync.Mutex
	assemblers map[string]*Assembler

	// persistCh serializes message writes so conversation order in the
	// database matches arrival order.
	persistCh chan conversation.Message
	persistMu sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

var _ AssemblerSink = (*SessionService)(nil)

// NewSessionService creates a SessionService and starts its persistence
// worker. Call Close during shutdown, after the supervisor has stopped
// delivering events.
func NewSessionService(
	store database.Store,
	c cache.Cache,
	sup *Supervisor,
	hub broadcast.Broadcaster,
	queue messagequeue.Queue,
	metrics *otel.Metrics,
) *SessionService {
	s := &SessionService{
		store:      store,
		cache:      c,
		sup:        sup,
		hub:        hub,
		queue:      queue,
		metrics:    metrics,
		assemblers: make(map[string]*Assembler),
		persistCh:  make(chan conversation.Message, persistQueueDepth),
		done:       make(chan struct{}),
	}
	go s.persistLoop()
	return s
}

// Close drains the persistence queue and stops the worker.
func (s *SessionService) Close() {
	s.closeOnce.Do(func() {
		s.persistMu.Lock()
		s.closed = true
		close(s.persistCh)
		s.persistMu.Unlock()
		<-s.done
	})
}

// List returns the workspace's sessions.
func (s *SessionService) List(ctx context.Context, workspaceID string) ([]session.Session, error) {
	return s.store.ListSessions(ctx, workspaceID)
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.store.GetSession(ctx, id)
}

// Create registers a session under the workspace. The session ID is the
// backend's identifier when the caller provides one, so stream events map
// onto it directly.
func (s *SessionService) Create(ctx context.Context, workspaceID string, req session.CreateRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return s.store.CreateSession(ctx, workspaceID, session.New(req))
}

// Delete removes a session along with its conversation and live state.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	s.sup.ForgetSession(id)

	s.mu.Lock()
	delete(s.assemblers, id)
	s.mu.Unlock()

	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.invalidateConversation(id)
	return nil
}

// Messages returns the session's persisted conversation, oldest first.
func (s *SessionService) Messages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	key := conversationKey(sessionID)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var msgs []conversation.Message
			if err := json.Unmarshal(raw, &msgs); err == nil {
				return msgs, nil
			}
		}
	}

	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(msgs); err == nil {
			_ = s.cache.Set(ctx, key, raw, conversationTTL)
		}
	}
	return msgs, nil
}

// Attach registers the session for live event routing and returns the
// current in-flight state for UI catch-up. It also nudges the workspace
// stream up; a failure there is reported in the connection state, not here.
func (s *SessionService) Attach(ctx context.Context, sessionID string) (conversation.StreamState, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return conversation.StreamState{}, err
	}

	asm := s.assembler(sessionID)
	s.sup.RegisterHandler(sessionID, asm)

	if wsp, err := s.store.GetWorkspace(ctx, sess.WorkspaceID); err == nil {
		if err := s.sup.Connect(ctx, *wsp); err != nil {
			slog.Warn("connect on attach", "workspace_id", wsp.ID, "error", err)
		}
	}
	return asm.Snapshot(), nil
}

// Detach stops routing the session's events. In-flight accumulation is kept
// so a re-attach resumes where the UI left off.
func (s *SessionService) Detach(sessionID string) {
	s.sup.UnregisterHandler(sessionID)
}

// StreamState returns the session's in-flight state, if it has an assembler.
func (s *SessionService) StreamState(sessionID string) (conversation.StreamState, bool) {
	s.mu.Lock()
	asm, ok := s.assemblers[sessionID]
	s.mu.Unlock()
	if !ok {
		return conversation.StreamState{}, false
	}
	return asm.Snapshot(), true
}

// AgentStatus returns the last status the agent reported for the session.
func (s *SessionService) AgentStatus(sessionID string) (session.AgentStatus, bool) {
	return s.sup.CurrentStatus(sessionID)
}

// SendMessage appends the user's message optimistically, then connects and
// dispatches the prompt in the background. The returned message is already
// visible in the conversation; delivery failures surface as session errors
// on the stream.
func (s *SessionService) SendMessage(ctx context.Context, sessionID string, req conversation.SendMessageRequest) (*conversation.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("content is required: %w", domain.ErrValidation)
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	wsp, err := s.store.GetWorkspace(ctx, sess.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	asm := s.assembler(sessionID)
	s.sup.RegisterHandler(sessionID, asm)

	msg := asm.BeginTurn(content)
	go s.dispatchPrompt(*wsp, sessionID, content)
	return &msg, nil
}

// dispatchPrompt brings the stream up if needed and hands the prompt to the
// backend. Runs detached from the originating request.
func (s *SessionService) dispatchPrompt(wsp workspace.Workspace, sessionID, content string) {
	ctx, span := otel.StartPromptSpan(context.Background(), sessionID, wsp.ID)
	defer span.End()
	start := time.Now()

	if err := s.sup.Connect(ctx, wsp); err != nil {
		slog.Warn("connect for prompt", "workspace_id", wsp.ID, "error", err)
	}

	cmd := agentstream.Command{Kind: agentstream.CommandPrompt, SessionID: sessionID, Text: content}
	if err := s.sup.Send(ctx, wsp.ID, cmd); err != nil {
		slog.Error("prompt dispatch failed",
			"session_id", sessionID,
			"workspace_id", wsp.ID,
			"error", err,
		)
		s.failTurn(sessionID, "could not reach agent backend: "+err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.PromptSendSeconds.Record(ctx, time.Since(start).Seconds())
	}
	slog.Info("prompt dispatched", "session_id", sessionID, "workspace_id", wsp.ID)
}

// Cancel flushes the session's partial response into the conversation and
// asks the backend to abort the run. The abort is best effort; a dead
// connection does not undo the local flush.
func (s *SessionService) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	asm, ok := s.assemblers[sessionID]
	s.mu.Unlock()
	if ok {
		asm.Cancel()
	}

	cmd := agentstream.Command{Kind: agentstream.CommandAbort, SessionID: sessionID}
	if err := s.sup.Send(ctx, sess.WorkspaceID, cmd); err != nil && !errors.Is(err, agentstream.ErrNotConnected) {
		slog.Warn("abort send failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// assembler returns the session's assembler, creating it on first use.
func (s *SessionService) assembler(sessionID string) *Assembler {
	s.mu.Lock()
	defer s.mu.Unlock()
	asm, ok := s.assemblers[sessionID]
	if !ok {
		asm = NewAssembler(sessionID, s)
		s.assemblers[sessionID] = asm
	}
	return asm
}

// failTurn injects a session error so the assembler clears its loading state
// and the failure reaches the UI through the usual path.
func (s *SessionService) failTurn(sessionID, msg string) {
	s.mu.Lock()
	asm, ok := s.assemblers[sessionID]
	s.mu.Unlock()
	if ok {
		asm.HandleEvent(agentstream.SessionError{SessionID: sessionID, Message: msg})
	}
}

// DeltaApplied implements AssemblerSink.
func (s *SessionService) DeltaApplied(sessionID, messageID, partID, text string) {
	s.broadcast(ws.EventStreamDelta, ws.StreamDeltaPayload{
		SessionID: sessionID,
		MessageID: messageID,
		PartID:    partID,
		Text:      text,
	})
}

// PartApplied implements AssemblerSink.
func (s *SessionService) PartApplied(sessionID string, part conversation.Part) {
	s.broadcast(ws.EventStreamPart, ws.StreamPartPayload{
		SessionID: sessionID,
		Part:      part,
	})
}

// MessageFinalized implements AssemblerSink. The message is broadcast
// immediately and queued for ordered persistence.
func (s *SessionService) MessageFinalized(msg conversation.Message) {
	s.broadcast(ws.EventMessageCreated, ws.MessageCreatedPayload{Message: msg})
	if s.metrics != nil {
		s.metrics.MessagesFinalized.Add(context.Background(), 1)
	}

	s.persistMu.RLock()
	defer s.persistMu.RUnlock()
	if s.closed {
		slog.Warn("dropping message after shutdown", "session_id", msg.SessionID, "message_id", msg.ID)
		return
	}
	s.persistCh <- msg
}

// StreamFailed implements AssemblerSink.
func (s *SessionService) StreamFailed(sessionID, errMsg string) {
	s.broadcast(ws.EventSessionError, ws.SessionErrorPayload{
		SessionID: sessionID,
		Error:     errMsg,
	})
}

// persistLoop is the single writer for conversation history. One worker
// keeps database order identical to stream order.
func (s *SessionService) persistLoop() {
	defer close(s.done)
	for msg := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)

		if err := s.store.AppendMessage(ctx, msg); err != nil {
			slog.Error("append message",
				"session_id", msg.SessionID,
				"message_id", msg.ID,
				"error", err,
			)
		} else {
			s.invalidateConversation(msg.SessionID)
			if err := s.store.TouchSession(ctx, msg.SessionID); err != nil {
				slog.Debug("touch session", "session_id", msg.SessionID, "error", err)
			}
		}

		if s.queue != nil {
			payload, err := json.Marshal(messagequeue.MessageCreatedPayload{
				MessageID: msg.ID,
				SessionID: msg.SessionID,
				Role:      string(msg.Role),
				Content:   msg.Content,
				CostUSD:   msg.Usage.CostUSD,
			})
			if err == nil {
				if err := s.queue.Publish(ctx, messagequeue.SubjectMessageCreated, payload); err != nil {
					slog.Debug("queue publish failed", "subject", messagequeue.SubjectMessageCreated, "error", err)
				}
			}
		}
		cancel()
	}
}

func (s *SessionService) broadcast(eventType string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(context.Background(), eventType, payload)
}

func (s *SessionService) invalidateConversation(sessionID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, conversationKey(sessionID)); err != nil {
		slog.Debug("cache invalidate", "session_id", sessionID, "error", err)
	}
}

func conversationKey(sessionID string) string {
	return "conversation:" + sessionID
}
