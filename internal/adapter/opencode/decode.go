// Package opencode adapts the OpenCode agent server protocol: wire frame
// decoding, the SSE and socket stream transports, and local backend process
// resolution and launching.
package opencode

import (
	"encoding/json"
	"fmt"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
)

// Decoder turns raw OpenCode wire frames into canonical events. It tolerates
// both historical wire shapes: the enveloped "properties" protocol emitted
// over SSE and the flat per-part protocol emitted over the socket transport.
// Pure and stateless; safe for concurrent use.
type Decoder struct{}

var _ agentstream.Decoder = Decoder{}

// Decode parses one frame. It returns (nil, nil) for recognized noise such as
// heartbeats, and an error wrapping agentstream.ErrUnrecognized for malformed
// or unknown frames, which callers log and drop without failing the stream.
func (Decoder) Decode(frame []byte) (agentstream.Event, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(frame, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed json: %v", agentstream.ErrUnrecognized, err)
	}

	if raw, ok := doc["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			return nil, fmt.Errorf("%w: non-string type", agentstream.ErrUnrecognized)
		}
		return decodeEnvelope(typ, doc["properties"])
	}

	// Flat socket frames have no type discriminator, only part-level keys.
	if _, ok := doc["partId"]; ok {
		return decodeFlat(doc)
	}

	return nil, fmt.Errorf("%w: no type or partId key", agentstream.ErrUnrecognized)
}

func decodeEnvelope(typ string, rawProps json.RawMessage) (agentstream.Event, error) {
	var props map[string]json.RawMessage
	if len(rawProps) > 0 {
		if err := json.Unmarshal(rawProps, &props); err != nil {
			return nil, fmt.Errorf("%w: malformed properties: %v", agentstream.ErrUnrecognized, err)
		}
	}

	switch typ {
	case "message.updated":
		return decodeMessageUpdated(props)

	case "message.part.delta":
		field := lookupString(props, "field")
		if field == "" {
			field = "text"
		}
		return agentstream.PartDelta{
			SessionID: resolveField(props, "sessionID"),
			MessageID: resolveField(props, "messageID"),
			PartID:    lookupString(props, "partID", "partId"),
			Field:     field,
			Text:      lookupString(props, "delta"),
		}, nil

	case "message.part.updated":
		var wp wirePart
		if raw, ok := props["part"]; ok {
			if err := json.Unmarshal(raw, &wp); err != nil {
				return nil, fmt.Errorf("%w: malformed part: %v", agentstream.ErrUnrecognized, err)
			}
		}
		return agentstream.PartUpdated{
			SessionID: resolveField(props, "sessionID"),
			MessageID: resolveField(props, "messageID"),
			Part:      wp.toDomain(),
		}, nil

	case "session.idle":
		return agentstream.SessionIdle{
			SessionID: resolveField(props, "sessionID"),
		}, nil

	case "session.status":
		return decodeSessionStatus(props)

	case "session.error":
		return agentstream.SessionError{
			SessionID: resolveField(props, "sessionID"),
			Message:   errorMessage(props),
		}, nil

	case "server.heartbeat", "server.connected":
		// Transport-level keepalives carry nothing for consumers.
		return nil, nil
	}

	return nil, fmt.Errorf("%w: type %q", agentstream.ErrUnrecognized, typ)
}

func decodeMessageUpdated(props map[string]json.RawMessage) (agentstream.Event, error) {
	var info struct {
		ID   string `json:"id"`
		Role string `json:"role"`
		Time struct {
			Completed int64 `json:"completed"`
		} `json:"time"`
	}
	if raw, ok := props["info"]; ok {
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("%w: malformed info: %v", agentstream.ErrUnrecognized, err)
		}
	}

	sessionID := resolveField(props, "sessionID")
	messageID := info.ID
	if messageID == "" {
		messageID = resolveField(props, "messageID")
	}

	switch {
	case info.Time.Completed != 0:
		return agentstream.MessageComplete{SessionID: sessionID, MessageID: messageID}, nil
	case info.Role == "assistant":
		return agentstream.MessageStart{SessionID: sessionID, MessageID: messageID}, nil
	}
	// Updates for user-authored messages carry nothing for consumers.
	return nil, nil
}

func decodeSessionStatus(props map[string]json.RawMessage) (agentstream.Event, error) {
	// The status object is omitted entirely when the agent goes idle.
	status := session.StatusIdle
	if raw, ok := props["status"]; ok {
		var st struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("%w: malformed status: %v", agentstream.ErrUnrecognized, err)
		}
		if st.Type != "" {
			status = session.AgentStatus(st.Type)
		}
	}
	return agentstream.StatusChanged{
		SessionID: resolveField(props, "sessionID"),
		Status:    status,
	}, nil
}

// decodeFlat handles the legacy socket shape: {"partId", "field", "delta"}
// for incremental text and {"partId", "part": {...}} for full snapshots.
func decodeFlat(doc map[string]json.RawMessage) (agentstream.Event, error) {
	if raw, ok := doc["part"]; ok {
		var wp wirePart
		if err := json.Unmarshal(raw, &wp); err != nil {
			return nil, fmt.Errorf("%w: malformed part: %v", agentstream.ErrUnrecognized, err)
		}
		if wp.ID == "" {
			wp.ID = lookupString(doc, "partId")
		}
		return agentstream.PartUpdated{
			SessionID: resolveField(doc, "sessionID"),
			MessageID: resolveField(doc, "messageID"),
			Part:      wp.toDomain(),
		}, nil
	}

	field := lookupString(doc, "field")
	if field == "" {
		field = "text"
	}
	return agentstream.PartDelta{
		SessionID: resolveField(doc, "sessionID", "sessionId"),
		MessageID: resolveField(doc, "messageID", "messageId"),
		PartID:    lookupString(doc, "partId"),
		Field:     field,
		Text:      lookupString(doc, "delta"),
	}, nil
}

// resolveField implements the historical identifier lookup order: top-level
// property first, then info.<field>, then part.<field>. First match wins.
// Extra key spellings may be supplied and are tried at each level.
func resolveField(doc map[string]json.RawMessage, keys ...string) string {
	if s := lookupString(doc, keys...); s != "" {
		return s
	}
	for _, parent := range []string{"info", "part"} {
		raw, ok := doc[parent]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if s := lookupString(nested, keys...); s != "" {
			return s
		}
	}
	return ""
}

// lookupString returns the first present string value among keys.
func lookupString(doc map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// errorMessage digs the human-readable message out of a session.error
// payload, which nests it at error.data.message or error.message.
func errorMessage(props map[string]json.RawMessage) string {
	raw, ok := props["error"]
	if !ok {
		return lookupString(props, "message")
	}
	var e struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return ""
	}
	switch {
	case e.Data.Message != "":
		return e.Data.Message
	case e.Message != "":
		return e.Message
	}
	return e.Name
}

// wirePart mirrors the backend's part document.
type wirePart struct {
	ID        string  `json:"id"`
	MessageID string  `json:"messageID"`
	SessionID string  `json:"sessionID"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	Tool      string  `json:"tool"`
	CallID    string  `json:"callID"`
	Cost      float64 `json:"cost"`

	State *struct {
		Status string          `json:"status"`
		Input  json.RawMessage `json:"input"`
		Output string          `json:"output"`
		Title  string          `json:"title"`
	} `json:"state"`

	Tokens *struct {
		Input     int `json:"input"`
		Output    int `json:"output"`
		Reasoning int `json:"reasoning"`
	} `json:"tokens"`
}

func (wp wirePart) toDomain() conversation.Part {
	p := conversation.Part{
		ID:        wp.ID,
		MessageID: wp.MessageID,
		Kind:      conversation.PartKind(wp.Type),
		Text:      wp.Text,
		Tool:      wp.Tool,
		CallID:    wp.CallID,
	}
	if wp.State != nil {
		p.Status = conversation.ToolStatus(wp.State.Status)
		p.Title = wp.State.Title
		p.Input = wp.State.Input
		p.Output = wp.State.Output
	}
	if wp.Tokens != nil || wp.Cost != 0 {
		u := &conversation.Usage{CostUSD: wp.Cost}
		if wp.Tokens != nil {
			u.InputTokens = wp.Tokens.Input
			u.OutputTokens = wp.Tokens.Output
			u.ReasoningTokens = wp.Tokens.Reasoning
		}
		p.Usage = u
	}
	return p
}
