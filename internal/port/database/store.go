// Package database defines the persistence port.
package database

import (
	"context"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
)

// Store is everything deckhand persists: workspaces, their sessions, and
// the finalized conversation messages. In-flight deltas never touch the
// store; only assembled messages are appended.
type Store interface {
	// Workspaces
	ListWorkspaces(ctx context.Context) ([]workspace.Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error)
	CreateWorkspace(ctx context.Context, req workspace.CreateRequest) (*workspace.Workspace, error)
	UpdateWorkspace(ctx context.Context, id string, req workspace.UpdateRequest) (*workspace.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error

	// Sessions
	ListSessions(ctx context.Context, workspaceID string) ([]session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	CreateSession(ctx context.Context, workspaceID string, sess session.Session) (*session.Session, error)
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error

	// Messages
	ListMessages(ctx context.Context, sessionID string) ([]conversation.Message, error)
	AppendMessage(ctx context.Context, msg conversation.Message) error
}
