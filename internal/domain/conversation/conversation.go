// Package conversation defines assembled chat messages and the streamed
// parts they are built from.
package conversation

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind enumerates the streamed part types an agent backend emits.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartTool       PartKind = "tool"
	PartStepStart  PartKind = "step-start"
	PartStepFinish PartKind = "step-finish"
)

// ToolStatus is the lifecycle state of a tool invocation part.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// Usage captures token and cost accounting reported by step-finish parts.
type Usage struct {
	InputTokens     int     `json:"input_tokens,omitempty"`
	OutputTokens    int     `json:"output_tokens,omitempty"`
	ReasoningTokens int     `json:"reasoning_tokens,omitempty"`
	CostUSD         float64 `json:"cost_usd,omitempty"`
}

// Add accumulates another usage report into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.CostUSD += other.CostUSD
}

// Part is one streamed fragment of an assistant message: a text or reasoning
// span, a tool invocation, or a step boundary marker.
type Part struct {
	ID        string     `json:"id"`
	MessageID string     `json:"message_id,omitempty"`
	Kind      PartKind   `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Tool      string     `json:"tool,omitempty"`    // tool name, tool parts only
	CallID    string     `json:"call_id,omitempty"` // backend correlation id for the tool call
	Status    ToolStatus `json:"status,omitempty"`
	Title     string     `json:"title,omitempty"` // human-readable tool progress line

	Input  json.RawMessage `json:"input,omitempty"`
	Output string          `json:"output,omitempty"`
	Usage  *Usage          `json:"usage,omitempty"`
}

// Message is a finished conversation entry: either a user submission or an
// assistant response assembled from its streamed parts.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts,omitempty"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// PlaceholderContent stands in for assistant messages that finished without
// producing any text parts (tool-only turns).
const PlaceholderContent = "(no text response)"

// TextContent concatenates the text-kind parts in slice order. Reasoning,
// tool, and step parts do not contribute.
func TextContent(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// StreamText concatenates text and reasoning parts in slice order. It is the
// live view of an in-flight response; final message content uses TextContent.
func StreamText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == PartText || p.Kind == PartReasoning {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// StreamState is a point-in-time copy of a session's in-flight assistant
// response, used for UI catch-up after page loads or reconnects.
type StreamState struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id,omitempty"`
	Loading   bool   `json:"loading"`
	Text      string `json:"text"`
	Parts     []Part `json:"parts,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendMessageRequest is the request body for sending a user message.
type SendMessageRequest struct {
	Content string `json:"content"`
}
