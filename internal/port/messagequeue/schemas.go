package messagequeue

// MessageCreatedPayload is the schema for deckhand.messages.created messages.
type MessageCreatedPayload struct {
	MessageID string  `json:"message_id"`
	SessionID string  `json:"session_id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	CostUSD   float64 `json:"cost_usd,omitempty"`
}

// SessionStatusPayload is the schema for deckhand.sessions.status messages.
type SessionStatusPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SessionFinishedPayload is the schema for deckhand.sessions.finished messages.
type SessionFinishedPayload struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id"`
}

// ConnectionStatePayload is the schema for deckhand.streams.state messages.
type ConnectionStatePayload struct {
	WorkspaceID string `json:"workspace_id"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts,omitempty"`
}
