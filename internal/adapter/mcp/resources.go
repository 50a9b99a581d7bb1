package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
)

// registerResources exposes read-only snapshots under the deckhand:// scheme.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"deckhand://workspaces",
			"Workspace List",
			mcplib.WithResourceDescription("All workspaces deckhand supervises"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleWorkspacesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"deckhand://streams",
			"Stream Status",
			mcplib.WithResourceDescription("Live event stream state and agent status for every workspace"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStreamsResource,
	)
}

// textResource wraps a pre-rendered JSON body in the single-content shape
// the protocol expects.
func textResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return textResource(uri, string(data)), nil
}

func (s *Server) handleWorkspacesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Workspaces == nil {
		return textResource(req.Params.URI, `{"error":"workspace reader not configured"}`), nil
	}
	workspaces, err := s.deps.Workspaces.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, workspaces)
}

func (s *Server) handleStreamsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Workspaces == nil {
		return textResource(req.Params.URI, `{"error":"workspace reader not configured"}`), nil
	}
	workspaces, err := s.deps.Workspaces.List(ctx)
	if err != nil {
		return nil, err
	}

	// A failed status lookup skips that workspace instead of failing the
	// whole read.
	statuses := make([]workspace.Status, 0, len(workspaces))
	for _, w := range workspaces {
		status, err := s.deps.Workspaces.Status(ctx, w.ID)
		if err != nil {
			continue
		}
		statuses = append(statuses, *status)
	}
	return jsonResource(req.Params.URI, statuses)
}
