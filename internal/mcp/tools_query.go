package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/pipeline"
)

// QueryArgument defines query parameters.
type QueryArgument struct {
	RepoURL   string `json:"repo_url" jsonschema:"Repository URL used at ingestion"`
	SessionID string `json:"session_id" jsonschema:"Session that ingested the repository"`
	Query     string `json:"query" jsonschema:"Natural language or code search text"`
	TopN      int    `json:"top_n,omitempty" jsonschema:"Number of snippets to return (default: 5)"`
}

// AskArgument defines question parameters.
type AskArgument struct {
	RepoURL   string `json:"repo_url" jsonschema:"Repository URL used at ingestion"`
	SessionID string `json:"session_id" jsonschema:"Session that ingested the repository"`
	Question  string `json:"question" jsonschema:"Question about the repository"`
	TopN      int    `json:"top_n,omitempty" jsonschema:"Number of snippets used as context (default: 5)"`
}

// SessionArgument identifies a session.
type SessionArgument struct {
	SessionID string `json:"session_id" jsonschema:"Caller session"`
}

// QueryHandler serves the retrieval tools.
type QueryHandler struct {
	service *pipeline.Service
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service *pipeline.Service) *QueryHandler {
	return &QueryHandler{service: service}
}

// HandleQuery returns ranked snippets for an ingested repository.
func (h *QueryHandler) HandleQuery(ctx context.Context, _ *mcp.CallToolRequest, args QueryArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("repo_url", args.RepoURL); res != nil {
		return res, nil, nil
	}
	if res := requireArg("query", args.Query); res != nil {
		return res, nil, nil
	}

	hits, err := h.service.Query(ctx, args.RepoURL, args.SessionID, args.Query, args.TopN)
	if err != nil {
		return failureResult("Query", err), nil, nil
	}
	if len(hits) == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s\n\nMake sure %s was ingested for this session.", args.Query, args.RepoURL)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(hits), args.Query)
	for i, hit := range hits {
		sb.WriteString(formatHit(i+1, hit))
	}
	return textResult(sb.String()), nil, nil
}

// HandleAsk answers a question from the repository's top ranked snippets.
func (h *QueryHandler) HandleAsk(ctx context.Context, _ *mcp.CallToolRequest, args AskArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("repo_url", args.RepoURL); res != nil {
		return res, nil, nil
	}
	if res := requireArg("question", args.Question); res != nil {
		return res, nil, nil
	}

	resp, err := h.service.Ask(ctx, args.RepoURL, args.SessionID, args.Question, args.TopN)
	if err != nil {
		return failureResult("Ask", err), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(resp.Answer.Answer)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "**Model**: %s | **Tokens**: %d prompt + %d completion = %d\n",
		resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)
	if resp.Error != "" {
		fmt.Fprintf(&sb, "**Error**: %s\n", resp.Error)
	}
	if len(resp.Snippets) > 0 {
		sb.WriteString("\n**Sources**:\n")
		for _, s := range resp.Snippets {
			fmt.Fprintf(&sb, "- %s:%d-%d\n", s.Metadata.FilePath, s.Metadata.StartLine, s.Metadata.EndLine)
		}
	}
	return textResult(sb.String()), nil, nil
}

// HandleListIndexed lists the repositories a session has indexed.
func (h *QueryHandler) HandleListIndexed(_ context.Context, _ *mcp.CallToolRequest, args SessionArgument) (*mcp.CallToolResult, any, error) {
	entries, err := h.service.Collections(args.SessionID)
	if err != nil {
		return failureResult("List repositories", err), nil, nil
	}
	if len(entries) == 0 {
		return textResult("No repositories indexed for this session"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d indexed repositories:\n\n", len(entries))
	sb.WriteString("| Repository | Commit | Chunks | Indexed |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, e := range entries {
		commit := e.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&sb, "| %s | %s | %d | %s |\n", e.RepoKey, commit, e.StoredCount, e.IndexedAt.Format(time.RFC3339))
	}
	return textResult(sb.String()), nil, nil
}

// RegisterQueryTools registers the retrieval tools with an MCP server.
func RegisterQueryTools(server *mcp.Server, service *pipeline.Service) {
	h := NewQueryHandler(service)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_code",
		Description: "Find the code snippets most relevant to a query in a repository ingested by this session",
	}, h.HandleQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_repository",
		Description: "Answer a question about a repository ingested by this session, using its most relevant code snippets as context",
	}, h.HandleAsk)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_indexed_repositories",
		Description: "List the repositories indexed for a session with their commit and chunk count",
	}, h.HandleListIndexed)
}
