package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// Tools exposes the query engine as MCP tools.
type Tools struct {
	query  ports.QueryService
	scopes ports.ScopeManager
	logger *slog.Logger
}

func NewTools(query ports.QueryService, scopes ports.ScopeManager, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{query: query, scopes: scopes, logger: logger}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false))
	tools.Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("answer_query",
		mcp.WithDescription("Answer a question from the indexed documents with page citations. "+
			"Returns has_relevant_info=false with a rejection reason when the corpus cannot support an answer."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer.")),
		mcp.WithString("document", mcp.Description("Restrict retrieval to one document (file name, .pdf optional).")),
		mcp.WithString("conversation_id", mcp.Description("Conversation scope; global documents stay visible.")),
	), t.answerQuery)

	s.AddTool(mcp.NewTool("clear_scope",
		mcp.WithDescription("Remove every indexed chunk tagged with a scope."),
		mcp.WithString("scope", mcp.Required(), mcp.Description("Scope id: a conversation id or \"global\".")),
	), t.clearScope)

	s.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Report index size: total chunks, distinct documents and chunks per scope."),
	), t.indexStats)
}

func (t *Tools) answerQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := domain.ScopeFilter{
		DocumentID:     request.GetString("document", ""),
		ConversationID: request.GetString("conversation_id", ""),
	}

	result, err := t.query.AnswerQuery(ctx, question, filter)
	if err != nil {
		return t.toolError("answer_query", err), nil
	}
	return jsonResult(result)
}

func (t *Tools) clearScope(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := request.RequireString("scope")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := t.scopes.ClearScope(ctx, scope)
	if err != nil {
		return t.toolError("clear_scope", err), nil
	}
	return jsonResult(map[string]any{"scope": scope, "removed": removed})
}

func (t *Tools) indexStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.scopes.Stats(ctx))
}

func (t *Tools) toolError(tool string, err error) *mcp.CallToolResult {
	if domain.IsKind(err, domain.ErrCollaboratorUnavailable) {
		t.logger.Error("mcp_tool_failed", "tool", tool, "error", err.Error())
		return mcp.NewToolResultError(domain.ApologyMessage)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
