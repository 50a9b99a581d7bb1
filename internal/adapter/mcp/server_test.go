package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	dhmcp "github.com/deckhand-ai/deckhand/internal/adapter/mcp"
	"github.com/deckhand-ai/deckhand/internal/domain"
	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/domain/workspace"
)

// --- Mocks ---

type mockWorkspaceReader struct {
	workspaces []workspace.Workspace
	statuses   map[string]*workspace.Status
	err        error
}

func (m *mockWorkspaceReader) List(_ context.Context) ([]workspace.Workspace, error) {
	return m.workspaces, m.err
}

func (m *mockWorkspaceReader) Get(_ context.Context, id string) (*workspace.Workspace, error) {
	for i := range m.workspaces {
		if m.workspaces[i].ID == id {
			return &m.workspaces[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockWorkspaceReader) Status(_ context.Context, id string) (*workspace.Status, error) {
	if s, ok := m.statuses[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

type mockSessionReader struct {
	sessions map[string][]session.Session
	messages map[string][]conversation.Message
}

func (m *mockSessionReader) List(_ context.Context, workspaceID string) ([]session.Session, error) {
	return m.sessions[workspaceID], nil
}

func (m *mockSessionReader) Messages(_ context.Context, sessionID string) ([]conversation.Message, error) {
	return m.messages[sessionID], nil
}

type mockSender struct {
	sent      []conversation.Message
	cancelled []string
}

func (m *mockSender) SendMessage(_ context.Context, sessionID string, req conversation.SendMessageRequest) (*conversation.Message, error) {
	msg := conversation.Message{
		ID:        "m1",
		SessionID: sessionID,
		Role:      conversation.RoleUser,
		Content:   req.Content,
	}
	m.sent = append(m.sent, msg)
	return &msg, nil
}

func (m *mockSender) Cancel(_ context.Context, sessionID string) error {
	m.cancelled = append(m.cancelled, sessionID)
	return nil
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	cfg := dhmcp.ServerConfig{
		Addr:    ":3001",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := dhmcp.NewServer(cfg, dhmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestServerStartStop(t *testing.T) {
	cfg := dhmcp.ServerConfig{
		Addr:    ":0",
		Name:    "test-server",
		Version: "0.1.0",
	}
	s := dhmcp.NewServer(cfg, dhmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestToolRegistration(t *testing.T) {
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, dhmcp.ServerDeps{})

	tools := s.ListTools()
	if len(tools) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(tools))
	}

	expectedTools := map[string]bool{
		"list_workspaces":      false,
		"get_workspace_status": false,
		"list_sessions":        false,
		"get_conversation":     false,
		"send_message":         false,
		"cancel_session":       false,
	}
	for name := range tools {
		if _, ok := expectedTools[name]; ok {
			expectedTools[name] = true
		} else {
			t.Errorf("unexpected tool: %s", name)
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("expected tool %q not registered", name)
		}
	}
}

func TestHandleListWorkspaces(t *testing.T) {
	deps := dhmcp.ServerDeps{
		Workspaces: &mockWorkspaceReader{
			workspaces: []workspace.Workspace{
				{ID: "w1", Name: "Alpha", Path: "/srv/alpha"},
				{ID: "w2", Name: "Beta", Path: "/srv/beta"},
			},
		},
	}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	tools := s.ListTools()
	listTool, ok := tools["list_workspaces"]
	if !ok {
		t.Fatal("list_workspaces tool not found")
	}

	result, err := listTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "list_workspaces"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var workspaces []workspace.Workspace
	if err := json.Unmarshal([]byte(text.Text), &workspaces); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(workspaces) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(workspaces))
	}
}

func TestHandleGetWorkspaceStatus(t *testing.T) {
	deps := dhmcp.ServerDeps{
		Workspaces: &mockWorkspaceReader{
			statuses: map[string]*workspace.Status{
				"w1": {WorkspaceID: "w1", State: "connected", Connected: true},
			},
		},
	}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	statusTool, ok := s.ListTools()["get_workspace_status"]
	if !ok {
		t.Fatal("get_workspace_status tool not found")
	}

	result, err := statusTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "get_workspace_status",
			Arguments: map[string]any{"workspace_id": "w1"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var status workspace.Status
	if err := json.Unmarshal([]byte(text.Text), &status); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if status.State != "connected" || !status.Connected {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestHandleGetWorkspaceStatusMissingArg(t *testing.T) {
	deps := dhmcp.ServerDeps{
		Workspaces: &mockWorkspaceReader{statuses: map[string]*workspace.Status{}},
	}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	statusTool, ok := s.ListTools()["get_workspace_status"]
	if !ok {
		t.Fatal("get_workspace_status tool not found")
	}

	result, err := statusTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "get_workspace_status"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing workspace_id")
	}
}

func TestHandleGetConversation(t *testing.T) {
	deps := dhmcp.ServerDeps{
		Sessions: &mockSessionReader{
			messages: map[string][]conversation.Message{
				"s1": {
					{ID: "m1", SessionID: "s1", Role: conversation.RoleUser, Content: "hi"},
					{ID: "m2", SessionID: "s1", Role: conversation.RoleAssistant, Content: "Hello"},
				},
			},
		},
	}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)

	convTool, ok := s.ListTools()["get_conversation"]
	if !ok {
		t.Fatal("get_conversation tool not found")
	}

	result, err := convTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "get_conversation",
			Arguments: map[string]any{"session_id": "s1"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}

	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var messages []conversation.Message
	if err := json.Unmarshal([]byte(text.Text), &messages); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[1].Content != "Hello" {
		t.Fatalf("expected assistant reply second, got %q", messages[1].Content)
	}
}

func TestHandleSendMessage(t *testing.T) {
	sender := &mockSender{}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, dhmcp.ServerDeps{Sender: sender})

	sendTool, ok := s.ListTools()["send_message"]
	if !ok {
		t.Fatal("send_message tool not found")
	}

	result, err := sendTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "send_message",
			Arguments: map[string]any{"session_id": "s1", "content": "run the tests"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sender.sent))
	}
	if sender.sent[0].Content != "run the tests" {
		t.Fatalf("unexpected content %q", sender.sent[0].Content)
	}
}

func TestHandleCancelSession(t *testing.T) {
	sender := &mockSender{}
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, dhmcp.ServerDeps{Sender: sender})

	cancelTool, ok := s.ListTools()["cancel_session"]
	if !ok {
		t.Fatal("cancel_session tool not found")
	}

	result, err := cancelTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      "cancel_session",
			Arguments: map[string]any{"session_id": "s9"},
		},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if len(sender.cancelled) != 1 || sender.cancelled[0] != "s9" {
		t.Fatalf("expected cancel for s9, got %v", sender.cancelled)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := dhmcp.NewServer(dhmcp.ServerConfig{Name: "test", Version: "0.1.0"}, dhmcp.ServerDeps{})

	listTool, ok := s.ListTools()["list_workspaces"]
	if !ok {
		t.Fatal("list_workspaces tool not found")
	}

	result, err := listTool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "list_workspaces"},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when deps are nil")
	}
}
