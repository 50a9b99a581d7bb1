package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
	"github.com/deckhand-ai/deckhand/internal/port/database"
)

// WorkspaceService handles workspace registration and stream lifecycle.
type WorkspaceService struct {
	store database.Store
	sup   *Supervisor
}

// NewWorkspaceService creates a new WorkspaceService.
func NewWorkspaceService(store database.Store, sup *Supervisor) *WorkspaceService {
	return &WorkspaceService{store: store, sup: sup}
}

// List returns all registered workspaces.
func (s *WorkspaceService) List(ctx context.Context) ([]workspace.Workspace, error) {
	return s.store.ListWorkspaces(ctx)
}

// Get returns a workspace by ID.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	return s.store.GetWorkspace(ctx, id)
}

// Create registers a new workspace after validating the request.
func (s *WorkspaceService) Create(ctx context.Context, req workspace.CreateRequest) (*workspace.Workspace, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.CreateWorkspace(ctx, req)
}

// Update applies partial updates to a workspace.
func (s *WorkspaceService) Update(ctx context.Context, id string, req workspace.UpdateRequest) (*workspace.Workspace, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateWorkspace(ctx, id, req)
}

// Delete disconnects the workspace stream, forgets its sessions, and removes
// the workspace. Sessions and messages go with it.
func (s *WorkspaceService) Delete(ctx context.Context, id string) error {
	sessions, err := s.store.ListSessions(ctx, id)
	if err != nil {
		slog.Warn("list sessions before workspace delete", "workspace_id", id, "error", err)
	}

	s.sup.Disconnect(id)
	for _, sess := range sessions {
		s.sup.ForgetSession(sess.ID)
	}

	return s.store.DeleteWorkspace(ctx, id)
}

// Connect establishes the workspace's event stream. Repeated calls on a
// connected workspace are no-ops.
func (s *WorkspaceService) Connect(ctx context.Context, id string) error {
	wsp, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return fmt.Errorf("get workspace: %w", err)
	}
	return s.sup.Connect(ctx, *wsp)
}

// Disconnect tears down the workspace's event stream.
func (s *WorkspaceService) Disconnect(ctx context.Context, id string) error {
	if _, err := s.store.GetWorkspace(ctx, id); err != nil {
		return fmt.Errorf("get workspace: %w", err)
	}
	s.sup.Disconnect(id)
	return nil
}

// Status reports the workspace's connection state and the last known agent
// status for each of its sessions.
func (s *WorkspaceService) Status(ctx context.Context, id string) (*workspace.Status, error) {
	if _, err := s.store.GetWorkspace(ctx, id); err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	state := s.sup.ConnectionState(id)
	st := &workspace.Status{
		WorkspaceID: id,
		State:       string(state),
		Connected:   state == agentstream.StateConnected,
	}

	sessions, err := s.store.ListSessions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for _, sess := range sessions {
		if agent, ok := s.sup.CurrentStatus(sess.ID); ok {
			if st.Sessions == nil {
				st.Sessions = make(map[string]string)
			}
			st.Sessions[sess.ID] = string(agent)
		}
	}
	return st, nil
}
