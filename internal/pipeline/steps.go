// Package pipeline runs ingestion jobs through clone, scan, chunk and index steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sha1n/mcp-repo-ingest/internal/chunker"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
	"github.com/sha1n/mcp-repo-ingest/internal/gitrepos"
	"github.com/sha1n/mcp-repo-ingest/internal/index"
	"github.com/sha1n/mcp-repo-ingest/internal/jobs"
)

// Run is the mutable state of one job, handed from step to step.
type Run struct {
	JobID      string
	SessionID  string
	Ref        gitrepos.RepoRef
	credential string

	Workspace *gitrepos.Workspace
	Commit    string
	Chunks    []domain.CodeChunk
	Stats     chunker.WalkStats
	Summary   index.Summary
}

// Step is one named stage of the pipeline.
// Message is recorded when the job enters Status; the returned fragment is merged once Run succeeds.
type Step interface {
	Name() string
	Status() jobs.Status
	Message(r *Run) string
	Run(ctx context.Context, r *Run) (*jobs.Fragment, error)
}

// CloneStep locks the (session, repository) workspace and fetches the tree into it.
// The workspace stays locked until the job settles.
type CloneStep struct {
	Workspaces *gitrepos.Workspaces
	Cloner     gitrepos.Cloner
	Timeout    time.Duration
}

func (s *CloneStep) Name() string        { return "clone" }
func (s *CloneStep) Status() jobs.Status { return jobs.StatusDownloading }

func (s *CloneStep) Message(r *Run) string {
	return fmt.Sprintf("Cloning %s", r.Ref.Display())
}

func (s *CloneStep) Run(ctx context.Context, r *Run) (*jobs.Fragment, error) {
	ws, err := s.Workspaces.Acquire(ctx, r.SessionID, r.Ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCloneFailure, err)
	}
	r.Workspace = ws

	cloneCtx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Cloner.Clone(cloneCtx, r.Ref, r.credential, ws.Dir); err != nil {
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: timed out after %s", domain.ErrCloneFailure, s.Timeout)
		}
		return nil, err
	}
	return nil, nil
}

// ScanStep records the checked-out commit.
type ScanStep struct {
	Logger *slog.Logger
}

func (s *ScanStep) Name() string        { return "scan" }
func (s *ScanStep) Status() jobs.Status { return jobs.StatusProcessing }

func (s *ScanStep) Message(*Run) string {
	return "Inspecting repository"
}

func (s *ScanStep) Run(_ context.Context, r *Run) (*jobs.Fragment, error) {
	commit, err := gitrepos.HeadCommit(r.Workspace.Dir)
	if err != nil {
		// An unborn HEAD still has files worth chunking
		s.Logger.Warn("Could not resolve HEAD commit", "job_id", r.JobID, "error", err)
		return nil, nil
	}
	r.Commit = commit
	return &jobs.Fragment{Commit: commit}, nil
}

// ChunkStep walks the tree through the repository filter and chunker.
type ChunkStep struct {
	Walker *chunker.Walker
}

func (s *ChunkStep) Name() string        { return "chunk" }
func (s *ChunkStep) Status() jobs.Status { return jobs.StatusChunking }

func (s *ChunkStep) Message(*Run) string {
	return "Chunking files"
}

func (s *ChunkStep) Run(ctx context.Context, r *Run) (*jobs.Fragment, error) {
	chunks, stats, err := s.Walker.Walk(ctx, r.Workspace.Dir)
	if err != nil {
		return nil, err
	}
	r.Chunks = chunks
	r.Stats = stats
	return &jobs.Fragment{ChunkCount: jobs.IntPtr(len(chunks))}, nil
}

// IndexStep replaces the collection content with the job's chunks and records it in the catalog.
type IndexStep struct {
	Adapter *index.Adapter
	Catalog *index.Catalog
	Timeout time.Duration
	Logger  *slog.Logger
}

func (s *IndexStep) Name() string        { return "index" }
func (s *IndexStep) Status() jobs.Status { return jobs.StatusEmbedding }

func (s *IndexStep) Message(r *Run) string {
	return fmt.Sprintf("Embedding %d chunks", len(r.Chunks))
}

func (s *IndexStep) Run(ctx context.Context, r *Run) (*jobs.Fragment, error) {
	indexCtx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	coll, created, err := s.Adapter.CreateOrGetCollection(indexCtx, r.Ref.Key(), r.SessionID)
	if err != nil {
		return nil, s.timeoutError(ctx, indexCtx, err)
	}

	summary, err := s.Adapter.ReplaceIngest(indexCtx, coll, r.JobID, r.Chunks)
	if err != nil {
		return nil, s.timeoutError(ctx, indexCtx, err)
	}
	r.Summary = summary

	s.Logger.Info("Indexed repository",
		"job_id", r.JobID,
		"collection", summary.Collection,
		"created", created,
		"stored", summary.StoredCount)

	if s.Catalog != nil {
		err := s.Catalog.Record(index.CatalogEntry{
			Collection:    summary.Collection,
			RepoKey:       r.Ref.Key(),
			SessionDigest: index.SessionDigest(r.SessionID),
			Commit:        r.Commit,
			JobID:         r.JobID,
			StoredCount:   summary.StoredCount,
			IndexedAt:     time.Now().UTC(),
		})
		if err != nil {
			s.Logger.Error("Failed to record collection in catalog", "job_id", r.JobID, "error", err)
		}
	}

	return &jobs.Fragment{Index: &jobs.IndexSummary{
		Collection:  summary.Collection,
		StoredCount: summary.StoredCount,
	}}, nil
}

func (s *IndexStep) timeoutError(parent, ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: timed out after %s", domain.ErrIndexingFailure, s.Timeout)
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
