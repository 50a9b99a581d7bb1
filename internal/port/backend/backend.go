// Package backend defines how deckhand locates and launches per-workspace
// agent backend server processes.
package backend

import "context"

// Resolver locates the live backend endpoint URL for a workspace directory.
// It returns an error wrapping domain.ErrNotFound when no backend is
// currently reachable for the workspace.
type Resolver interface {
	Resolve(ctx context.Context, workspacePath string) (string, error)
}

// Launcher starts a workspace's agent backend when none is running.
type Launcher interface {
	// EnsureRunning resolves the workspace endpoint, starting the backend
	// process first when none is reachable. Concurrent calls for the same
	// workspace share a single launch attempt.
	EnsureRunning(ctx context.Context, workspacePath string) (string, error)
}
