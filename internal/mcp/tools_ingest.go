package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/pipeline"
)

// IngestArgument defines ingestion parameters.
type IngestArgument struct {
	RepoURL   string `json:"repo_url" jsonschema:"Repository URL (https, ssh, or file:// when local repositories are enabled)"`
	SessionID string `json:"session_id" jsonschema:"Caller session that owns the ingested collection"`
	Token     string `json:"token,omitempty" jsonschema:"Access token for private https repositories"`
}

// JobArgument identifies a job.
type JobArgument struct {
	JobID string `json:"job_id" jsonschema:"Job id returned by ingest_repository"`
}

// ListJobsArgument identifies the session whose jobs are listed.
type ListJobsArgument struct {
	SessionID string `json:"session_id" jsonschema:"Session that submitted the jobs"`
}

// IngestHandler serves the job lifecycle tools.
type IngestHandler struct {
	service *pipeline.Service
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(service *pipeline.Service) *IngestHandler {
	return &IngestHandler{service: service}
}

// HandleIngest submits a repository for ingestion and returns the job id immediately.
func (h *IngestHandler) HandleIngest(_ context.Context, _ *mcp.CallToolRequest, args IngestArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("repo_url", args.RepoURL); res != nil {
		return res, nil, nil
	}

	job, err := h.service.Submit(args.RepoURL, args.SessionID, args.Token)
	if err != nil {
		return failureResult("Ingest", err), nil, nil
	}

	return textResult(fmt.Sprintf(
		"Ingestion started.\n\n- **Job ID**: %s\n- **Status**: %s\n\nPoll get_ingest_status with this job id until it is completed or failed.",
		job.ID, job.Status)), nil, nil
}

// HandleStatus returns the current view of a job.
func (h *IngestHandler) HandleStatus(_ context.Context, _ *mcp.CallToolRequest, args JobArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("job_id", args.JobID); res != nil {
		return res, nil, nil
	}

	job, err := h.service.Status(args.JobID)
	if err != nil {
		return failureResult("Status", err), nil, nil
	}
	return textResult(formatJob(job)), nil, nil
}

// HandleListChunks returns the chunk metadata of a completed job.
func (h *IngestHandler) HandleListChunks(_ context.Context, _ *mcp.CallToolRequest, args JobArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("job_id", args.JobID); res != nil {
		return res, nil, nil
	}

	chunks, err := h.service.ListChunks(args.JobID)
	if err != nil {
		return failureResult("List chunks", err), nil, nil
	}
	if len(chunks) == 0 {
		return textResult(fmt.Sprintf("Job %s produced no chunks", args.JobID)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s produced %d chunks:\n\n", args.JobID, len(chunks))
	sb.WriteString("| Chunk | Language | Lines | Characters |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "| %s | %s | %d-%d | %d |\n", c.ID, c.Language, c.StartLine, c.EndLine, c.ContentLength)
	}
	return textResult(sb.String()), nil, nil
}

// HandleCancel stops an in-flight job.
func (h *IngestHandler) HandleCancel(_ context.Context, _ *mcp.CallToolRequest, args JobArgument) (*mcp.CallToolResult, any, error) {
	if res := requireArg("job_id", args.JobID); res != nil {
		return res, nil, nil
	}

	canceled, err := h.service.Cancel(args.JobID)
	if err != nil {
		return failureResult("Cancel", err), nil, nil
	}
	if !canceled {
		return textResult(fmt.Sprintf("Job %s already finished", args.JobID)), nil, nil
	}
	return textResult(fmt.Sprintf("Cancellation requested for job %s", args.JobID)), nil, nil
}

// HandleListJobs lists the session's jobs newest first.
func (h *IngestHandler) HandleListJobs(_ context.Context, _ *mcp.CallToolRequest, args ListJobsArgument) (*mcp.CallToolResult, any, error) {
	all, err := h.service.SessionJobs(args.SessionID)
	if err != nil {
		return failureResult("List jobs", err), nil, nil
	}
	if len(all) == 0 {
		return textResult("No ingestion jobs"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d ingestion jobs:\n\n", len(all))
	sb.WriteString("| Job | Repository | Status | Message |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, j := range all {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", j.ID, j.RepoURL, j.Status, j.Message)
	}
	return textResult(sb.String()), nil, nil
}

// RegisterIngestTools registers the job lifecycle tools with an MCP server.
func RegisterIngestTools(server *mcp.Server, service *pipeline.Service) {
	h := NewIngestHandler(service)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_repository",
		Description: "Clone a git repository, split it into code chunks and index them for the given session. Returns a job id immediately; the work runs in the background.",
	}, h.HandleIngest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_ingest_status",
		Description: "Get the status of an ingestion job: pending, downloading, processing, chunking, embedding, completed or failed",
	}, h.HandleStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_chunks",
		Description: "List the chunk metadata (file, line range, language, size) of a completed ingestion job",
	}, h.HandleListChunks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_ingest",
		Description: "Cancel an ingestion job that is still running",
	}, h.HandleCancel)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_ingest_jobs",
		Description: "List the ingestion jobs submitted by the given session, newest first",
	}, h.HandleListJobs)
}
