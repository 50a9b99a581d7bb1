// Package service contains application services.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
)

// AssemblerSink receives what an Assembler produces: streamed fragments as
// they apply, finished messages, and stream failures. Implementations must
// return quickly and must not call back into the Assembler.
type AssemblerSink interface {
	// DeltaApplied reports one appended text fragment.
	DeltaApplied(sessionID, messageID, partID, text string)
	// PartApplied reports the post-merge state of a part after a full update.
	PartApplied(sessionID string, part conversation.Part)
	// MessageFinalized reports a completed message, assistant or user.
	MessageFinalized(msg conversation.Message)
	// StreamFailed reports a session-scoped error from the backend.
	StreamFailed(sessionID, errMsg string)
}

// Assembler reduces one session's event stream into in-flight display state
// and finished conversation messages. Events arrive in wire order from the
// stream read loop; snapshots and turn control come from API goroutines.
type Assembler struct {
	mu        sync.Mutex
	sessionID string
	sink      AssemblerSink
	now       func() time.Time

	order     []string
	parts     map[string]*conversation.Part
	messageID string
	loading   bool
	lastError string
}

var _ agentstream.Handler = (*Assembler)(nil)

// NewAssembler creates an Assembler for a single session.
func NewAssembler(sessionID string, sink AssemblerSink) *Assembler {
	return &Assembler{
		sessionID: sessionID,
		sink:      sink,
		now:       time.Now,
		parts:     make(map[string]*conversation.Part),
	}
}

// HandleEvent applies one decoded event to the accumulation state.
func (a *Assembler) HandleEvent(ev agentstream.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case agentstream.MessageStart:
		a.messageID = e.MessageID
		a.loading = true
	case agentstream.PartDelta:
		a.applyDelta(e)
	case agentstream.PartUpdated:
		a.applyPart(e)
	case agentstream.MessageComplete:
		a.finalize()
	case agentstream.SessionIdle:
		a.finalize()
	case agentstream.SessionError:
		a.lastError = e.Message
		a.loading = false
		if a.sink != nil {
			a.sink.StreamFailed(a.sessionID, e.Message)
		}
	case agentstream.StatusChanged:
		// Status lives in the supervisor's cache, not in message state.
	}
}

// applyDelta appends a text fragment to its part, creating the part on first
// sight. Deltas that arrive before the message announcement are dropped so
// text cannot be attributed to the wrong turn.
func (a *Assembler) applyDelta(e agentstream.PartDelta) {
	if a.messageID == "" {
		slog.Debug("dropping early delta",
			"session_id", a.sessionID,
			"part_id", e.PartID,
		)
		return
	}
	if e.Field != "" && e.Field != "text" {
		return
	}
	p, ok := a.parts[e.PartID]
	if !ok {
		p = &conversation.Part{
			ID:        e.PartID,
			MessageID: a.messageID,
			Kind:      conversation.PartText,
		}
		a.parts[e.PartID] = p
		a.order = append(a.order, e.PartID)
	}
	p.Text += e.Text
	if a.sink != nil {
		a.sink.DeltaApplied(a.sessionID, a.messageID, e.PartID, e.Text)
	}
}

// applyPart replaces a part with its full snapshot, preserving arrival order
// and filling identifiers the snapshot omits.
func (a *Assembler) applyPart(e agentstream.PartUpdated) {
	in := e.Part
	if in.ID == "" {
		slog.Debug("dropping part update without id", "session_id", a.sessionID)
		return
	}
	if in.MessageID == "" {
		in.MessageID = a.messageID
	}
	if in.Kind == "" {
		in.Kind = conversation.PartText
	}
	p, ok := a.parts[in.ID]
	if !ok {
		p = &conversation.Part{}
		a.parts[in.ID] = p
		a.order = append(a.order, in.ID)
	}
	*p = in
	if a.sink != nil {
		a.sink.PartApplied(a.sessionID, *p)
	}
}

// finalize assembles the accumulated parts into a finished assistant message
// and resets for the next turn. Called with a.mu held. An idle signal with
// nothing accumulated is a keepalive and produces no message.
func (a *Assembler) finalize() {
	if a.messageID == "" && len(a.order) == 0 && !a.loading {
		return
	}

	parts := make([]conversation.Part, 0, len(a.order))
	var usage conversation.Usage
	for _, id := range a.order {
		p := a.parts[id]
		parts = append(parts, *p)
		if p.Usage != nil {
			usage.Add(*p.Usage)
		}
	}

	content := conversation.TextContent(parts)
	if content == "" {
		content = conversation.PlaceholderContent
	}
	id := a.messageID
	if id == "" {
		id = uuid.NewString()
	}
	msg := conversation.Message{
		ID:        id,
		SessionID: a.sessionID,
		Role:      conversation.RoleAssistant,
		Content:   content,
		Parts:     parts,
		Usage:     usage,
		CreatedAt: a.now().UTC(),
	}

	a.reset()
	if a.sink != nil {
		a.sink.MessageFinalized(msg)
	}
}

// reset clears all per-turn accumulation. Called with a.mu held.
func (a *Assembler) reset() {
	a.order = nil
	a.parts = make(map[string]*conversation.Part)
	a.messageID = ""
	a.loading = false
	a.lastError = ""
}

// BeginTurn records an optimistic user message and arms the loading state
// for the assistant response, clearing any leftover accumulation first.
// The message is reported through the sink like any finished message.
func (a *Assembler) BeginTurn(content string) conversation.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg := conversation.Message{
		ID:        uuid.NewString(),
		SessionID: a.sessionID,
		Role:      conversation.RoleUser,
		Content:   content,
		CreatedAt: a.now().UTC(),
	}
	a.reset()
	a.loading = true
	if a.sink != nil {
		a.sink.MessageFinalized(msg)
	}
	return msg
}

// Cancel flushes whatever has accumulated into a message immediately. The
// caller is responsible for telling the backend to abort the run.
func (a *Assembler) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalize()
}

// Snapshot returns a copy of the in-flight state for UI catch-up.
func (a *Assembler) Snapshot() conversation.StreamState {
	a.mu.Lock()
	defer a.mu.Unlock()

	parts := make([]conversation.Part, 0, len(a.order))
	for _, id := range a.order {
		parts = append(parts, *a.parts[id])
	}
	return conversation.StreamState{
		SessionID: a.sessionID,
		MessageID: a.messageID,
		Loading:   a.loading,
		Text:      conversation.StreamText(parts),
		Parts:     parts,
		Error:     a.lastError,
	}
}
