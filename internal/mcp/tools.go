package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
	"github.com/sha1n/mcp-repo-ingest/internal/index"
	"github.com/sha1n/mcp-repo-ingest/internal/jobs"
	"github.com/sha1n/mcp-repo-ingest/internal/pipeline"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// failureResult reports err with a label naming its failure kind.
func failureResult(action string, err error) *mcp.CallToolResult {
	var label string
	switch {
	case errors.Is(err, domain.ErrInvalidIdentity):
		label = "Invalid repository"
	case errors.Is(err, domain.ErrUnauthorized):
		label = "Unauthorized"
	case errors.Is(err, domain.ErrJobNotFound):
		label = "Job not found"
	case errors.Is(err, domain.ErrNotReady):
		label = "Not ready"
	case errors.Is(err, index.ErrEmptyQuery):
		label = "Invalid query"
	case errors.Is(err, pipeline.ErrShuttingDown):
		label = "Unavailable"
	default:
		label = action + " failed"
	}
	return errorResult(fmt.Sprintf("%s: %s", label, err))
}

func requireArg(name, value string) *mcp.CallToolResult {
	if strings.TrimSpace(value) == "" {
		return errorResult(fmt.Sprintf("%s cannot be empty", name))
	}
	return nil
}

// formatJob renders a job view without its chunk list.
func formatJob(j *jobs.Job) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Job %s\n\n", j.ID)
	fmt.Fprintf(&sb, "- **Repository**: %s\n", j.RepoURL)
	fmt.Fprintf(&sb, "- **Status**: %s\n", j.Status)
	if j.Message != "" {
		fmt.Fprintf(&sb, "- **Message**: %s\n", j.Message)
	}
	if j.Error != "" {
		fmt.Fprintf(&sb, "- **Error**: %s\n", j.Error)
	}
	if j.Commit != "" {
		fmt.Fprintf(&sb, "- **Commit**: %s\n", j.Commit)
	}
	if j.ChunkCount != nil {
		fmt.Fprintf(&sb, "- **Chunks**: %d\n", *j.ChunkCount)
	}
	if j.Index != nil {
		fmt.Fprintf(&sb, "- **Collection**: %s (%d stored)\n", j.Index.Collection, j.Index.StoredCount)
	}
	fmt.Fprintf(&sb, "- **Created**: %s\n", j.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Updated**: %s\n", j.UpdatedAt.Format(time.RFC3339))
	for _, d := range j.Diagnostics {
		fmt.Fprintf(&sb, "- **Note**: %s\n", d)
	}
	return sb.String()
}

// formatHit renders one ranked snippet with its coordinates.
func formatHit(i int, h index.Hit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %d. %s:%d-%d\n", i, h.Metadata.FilePath, h.Metadata.StartLine, h.Metadata.EndLine)
	fmt.Fprintf(&sb, "**Language**: %s | **Distance**: %.4f\n\n", h.Metadata.Language, h.Distance)
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimRight(h.Content, "\n"))
	sb.WriteString("\n```\n\n")
	return sb.String()
}
