// Package mcp exposes deckhand's workspaces, sessions, and conversations to
// MCP-capable agents over SSE: tools for the operations, resources for the
// read-only views.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
)

// WorkspaceReader lists workspaces and reports their supervision status.
type WorkspaceReader interface {
	List(ctx context.Context) ([]workspace.Workspace, error)
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
	Status(ctx context.Context, id string) (*workspace.Status, error)
}

// SessionReader lists a workspace's sessions and reads conversations.
type SessionReader interface {
	List(ctx context.Context, workspaceID string) ([]session.Session, error)
	Messages(ctx context.Context, sessionID string) ([]conversation.Message, error)
}

// MessageSender drives a session: prompt dispatch and cancellation.
type MessageSender interface {
	SendMessage(ctx context.Context, sessionID string, req conversation.SendMessageRequest) (*conversation.Message, error)
	Cancel(ctx context.Context, sessionID string) error
}

// ServerConfig holds the MCP server's listen address, identity, and optional
// API key. An empty APIKey disables auth.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps are the capabilities the tools and resources call into. A nil
// field makes the corresponding tools return an error result instead of
// panicking, so partial wiring is safe.
type ServerDeps struct {
	Workspaces WorkspaceReader
	Sessions   SessionReader
	Sender     MessageSender
}

// Server hosts the MCP protocol server over SSE with optional bearer auth.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	tools     map[string]mcpserver.ServerTool
	httpSrv   *http.Server
}

// NewServer builds the server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version),
		tools:     make(map[string]mcpserver.ServerTool),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying protocol server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ListTools returns the registered tools keyed by name.
func (s *Server) ListTools() map[string]mcpserver.ServerTool {
	return s.tools
}

// addTools registers tools on the protocol server and records them for
// introspection.
func (s *Server) addTools(tools ...mcpserver.ServerTool) {
	s.mcpServer.AddTools(tools...)
	for _, t := range tools {
		s.tools[t.Tool.Name] = t
	}
}

// Start binds cfg.Addr and serves SSE without blocking. Listen errors are
// returned synchronously; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}

	sse := mcpserver.NewSSEServer(s.mcpServer)
	s.httpSrv = &http.Server{
		Handler:           AuthMiddleware(s.cfg.APIKey, sse),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()

	slog.Info("mcp server listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the listener down gracefully. Safe to call before Start.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
