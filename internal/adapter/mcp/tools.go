package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.addTools(
		s.listWorkspacesTool(),
		s.getWorkspaceStatusTool(),
		s.listSessionsTool(),
		s.getConversationTool(),
		s.sendMessageTool(),
		s.cancelSessionTool(),
	)
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}

func (s *Server) listWorkspacesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_workspaces",
		mcplib.WithDescription("List all workspaces supervised by deckhand"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListWorkspaces,
	}
}

func (s *Server) getWorkspaceStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_workspace_status",
		mcplib.WithDescription("Get a workspace's event stream state and per-session agent status"),
		mcplib.WithString("workspace_id",
			mcplib.Required(),
			mcplib.Description("The workspace ID to inspect"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetWorkspaceStatus,
	}
}

func (s *Server) listSessionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_sessions",
		mcplib.WithDescription("List the agent sessions of a workspace"),
		mcplib.WithString("workspace_id",
			mcplib.Required(),
			mcplib.Description("The workspace ID whose sessions to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListSessions,
	}
}

func (s *Server) getConversationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_conversation",
		mcplib.WithDescription("Get the full message history of a session in order"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID whose conversation to read"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetConversation,
	}
}

func (s *Server) sendMessageTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("send_message",
		mcplib.WithDescription("Send a prompt to a session's agent; the reply streams in asynchronously"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID to prompt"),
		),
		mcplib.WithString("content",
			mcplib.Required(),
			mcplib.Description("The prompt text"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSendMessage,
	}
}

func (s *Server) cancelSessionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cancel_session",
		mcplib.WithDescription("Cancel a session's in-flight agent run"),
		mcplib.WithString("session_id",
			mcplib.Required(),
			mcplib.Description("The session ID to cancel"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCancelSession,
	}
}

func (s *Server) handleListWorkspaces(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workspaces == nil {
		return mcplib.NewToolResultError("workspace reader not configured"), nil
	}
	workspaces, err := s.deps.Workspaces.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list workspaces", err), nil
	}
	data, err := json.Marshal(workspaces)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal workspaces", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetWorkspaceStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Workspaces == nil {
		return mcplib.NewToolResultError("workspace reader not configured"), nil
	}
	args := req.GetArguments()
	workspaceID, ok := args["workspace_id"].(string)
	if !ok || workspaceID == "" {
		return mcplib.NewToolResultError("workspace_id is required"), nil
	}
	status, err := s.deps.Workspaces.Status(ctx, workspaceID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get status for workspace %s", workspaceID), err,
		), nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal status", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListSessions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil {
		return mcplib.NewToolResultError("session reader not configured"), nil
	}
	args := req.GetArguments()
	workspaceID, ok := args["workspace_id"].(string)
	if !ok || workspaceID == "" {
		return mcplib.NewToolResultError("workspace_id is required"), nil
	}
	sessions, err := s.deps.Sessions.List(ctx, workspaceID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list sessions for workspace %s", workspaceID), err,
		), nil
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal sessions", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetConversation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sessions == nil {
		return mcplib.NewToolResultError("session reader not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	messages, err := s.deps.Sessions.Messages(ctx, sessionID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to read conversation for session %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal conversation", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleSendMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sender == nil {
		return mcplib.NewToolResultError("message sender not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return mcplib.NewToolResultError("content is required"), nil
	}
	msg, err := s.deps.Sender.SendMessage(ctx, sessionID, conversation.SendMessageRequest{Content: content})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to send message to session %s", sessionID), err,
		), nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal message", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleCancelSession(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Sender == nil {
		return mcplib.NewToolResultError("message sender not configured"), nil
	}
	args := req.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcplib.NewToolResultError("session_id is required"), nil
	}
	if err := s.deps.Sender.Cancel(ctx, sessionID); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to cancel session %s", sessionID), err,
		), nil
	}
	return toolResultJSON(fmt.Sprintf(`{"status":"cancelled","session_id":%q}`, sessionID)), nil
}
