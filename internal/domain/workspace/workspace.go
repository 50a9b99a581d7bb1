// Package workspace defines the Workspace domain entity.
package workspace

import (
	"fmt"
	"path/filepath"
	"time"
	"unicode"

	"github.com/deckhand-ai/deckhand/internal/domain"
)

// Workspace represents a project directory whose agent backend deckhand supervises.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Endpoint  string    `json:"endpoint,omitempty"` // pinned backend URL; empty means resolve at connect time
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status reports a workspace's live supervision state: the stream connection
// and the last known agent status per session.
type Status struct {
	WorkspaceID string            `json:"workspace_id"`
	State       string            `json:"state"`
	Connected   bool              `json:"connected"`
	Sessions    map[string]string `json:"sessions,omitempty"`
}

// CreateRequest holds the fields needed to register a new workspace.
type CreateRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Endpoint string `json:"endpoint,omitempty"`
}

// UpdateRequest holds the mutable workspace fields. Nil pointers leave the field unchanged.
type UpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Endpoint *string `json:"endpoint,omitempty"`
}

// Validate checks that a CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if r.Path == "" {
		return fmt.Errorf("path is required: %w", domain.ErrValidation)
	}
	if !filepath.IsAbs(r.Path) {
		return fmt.Errorf("path must be absolute: %w", domain.ErrValidation)
	}
	if filepath.Clean(r.Path) != r.Path {
		return fmt.Errorf("path must be clean (no trailing slash or dot segments): %w", domain.ErrValidation)
	}
	return nil
}

// Validate checks the fields of an UpdateRequest.
func (r *UpdateRequest) Validate() error {
	if r.Name != nil {
		if err := validateName(*r.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}
