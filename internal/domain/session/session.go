// Package session defines the agent session entity and its live status.
package session

import (
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/deckhand-ai/deckhand/internal/domain"
)

// AgentStatus is the backend-reported activity state of a session's agent.
type AgentStatus string

const (
	StatusUnknown AgentStatus = ""
	StatusIdle    AgentStatus = "idle"
	StatusBusy    AgentStatus = "busy"
	StatusRetry   AgentStatus = "retry"
)

// Session represents one agent conversation thread inside a workspace.
// The ID is the backend's session identifier, so stream events map onto it directly.
type Session struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to register a session.
type CreateRequest struct {
	Title string `json:"title"`
	// ID pins the backend session identifier; generated when empty.
	ID string `json:"id,omitempty"`
}

// New builds a Session from a validated CreateRequest, generating an ID
// when the backend has not assigned one yet.
func New(req CreateRequest) Session {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Session{ID: id, Title: req.Title}
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if len(r.Title) > 255 {
		return fmt.Errorf("title exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, c := range r.Title {
		if unicode.IsControl(c) {
			return fmt.Errorf("title contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}
