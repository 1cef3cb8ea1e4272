package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/carraro/deskflow/internal/ingest"
	"github.com/carraro/deskflow/internal/retrieval"
	"github.com/carraro/deskflow/internal/session"
	"github.com/carraro/deskflow/internal/storage"
)

// MCPRetriever abstracts semantic search over the policy index.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) []retrieval.Passage
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Sessions  *session.Manager
	Flow      FlowRunner
	Retriever MCPRetriever
}

// NewMCPServer creates an MCP server exposing the service desk as tools:
// triage-and-answer, raw policy search, document submission and ticket
// inspection.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"deskflow",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("deskflow — internal service desk for HR/IT policy questions, escalations and tickets."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_policy",
			mcp.WithDescription("Ask an HR/IT policy question. The request is triaged and either answered from the policy documents, answered with a request for more information, or escalated to a ticket."),
			mcp.WithString("question", mcp.Description("The question or request"), mcp.Required()),
			mcp.WithString("requester", mcp.Description("Who is asking (name or handle)")),
			mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new conversation")),
		),
		mcpAskPolicy(deps),
	)

	s.AddTool(
		mcp.NewTool("search_policies",
			mcp.WithDescription("Semantically search the policy documents and return the most relevant passages with scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of passages (default 4)")),
		),
		mcpSearchPolicies(deps),
	)

	s.AddTool(
		mcp.NewTool("add_policy",
			mcp.WithDescription("Store a policy document and queue it for indexing."),
			mcp.WithString("title", mcp.Description("Document title")),
			mcp.WithString("content", mcp.Description("The policy text"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddPolicy(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tickets://recent",
			"Recent Tickets",
			mcp.WithResourceDescription("Last 10 opened tickets (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTickets(deps),
	)

	return s
}

func mcpAskPolicy(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		requester := req.GetString("requester", "mcp")

		var sess *session.Session
		if id := req.GetString("session_id", ""); id != "" {
			var ok bool
			if sess, ok = deps.Sessions.Get(id); !ok {
				return mcpError(fmt.Sprintf("unknown session %s", id)), nil
			}
		} else {
			sess = deps.Sessions.Open()
		}

		outcome, err := deps.Flow.Run(ctx, sess, question, requester)
		if err != nil {
			return mcpError(fmt.Sprintf("processing turn: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session_id": sess.ID(),
			"kind":       outcome.Kind,
			"text":       outcome.Message(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchPolicies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 4)
		if limit <= 0 {
			limit = 4
		}
		if limit > 50 {
			limit = 50
		}

		passages := deps.Retriever.Retrieve(ctx, query, limit)
		if len(passages) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(passages)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal passages: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddPolicy(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")
		tags := req.GetStringSlice("tags", nil)

		tagsJSON := "[]"
		if len(tags) > 0 {
			b, err := json.Marshal(tags)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
			}
			tagsJSON = string(b)
		}

		doc := storage.PolicyDoc{
			ID:        uuid.NewString(),
			Title:     title,
			Content:   content,
			Source:    "mcp",
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := ingest.EnqueueDoc(deps.Store, doc); err != nil {
			return mcpError(fmt.Sprintf("failed to queue document: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored policy doc %s", doc.ID)), nil
	}
}

func mcpResourceTickets(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tickets, err := deps.Store.ListTickets(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list tickets: %w", err)
		}

		type ticketSummary struct {
			ID        string `json:"id"`
			Summary   string `json:"summary"`
			Urgency   string `json:"urgency"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]ticketSummary, len(tickets))
		for i, t := range tickets {
			summary := t.Summary
			if utf8.RuneCountInString(summary) > 200 {
				runes := []rune(summary)
				summary = string(runes[:200]) + "..."
			}
			summaries[i] = ticketSummary{
				ID:        t.ID,
				Summary:   summary,
				Urgency:   t.Urgency,
				Status:    string(t.Status),
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tickets: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
