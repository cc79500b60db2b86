package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sha1n/mcp-repo-ingest/internal/answer"
	"github.com/sha1n/mcp-repo-ingest/internal/chunker"
	"github.com/sha1n/mcp-repo-ingest/internal/config"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
	"github.com/sha1n/mcp-repo-ingest/internal/gitrepos"
	"github.com/sha1n/mcp-repo-ingest/internal/index"
	"github.com/sha1n/mcp-repo-ingest/internal/jobs"
)

// DefaultTopN is the number of snippets returned when the caller does not ask for a count
const DefaultTopN = 5

// Service is the caller-facing surface: submit jobs, poll them, and query ingested repositories.
type Service struct {
	orchestrator *Orchestrator
	store        jobs.Store
	adapter      *index.Adapter
	catalog      *index.Catalog
	generator    *answer.Generator
	policy       gitrepos.URLPolicy
	logger       *slog.Logger

	defaultToken   string
	allowAnonymous bool
	maxResults     int
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     jobs.Store
	Adapter   *index.Adapter
	Catalog   *index.Catalog
	Generator *answer.Generator
	Cloner    gitrepos.Cloner
	Logger    *slog.Logger
}

// NewService wires a Service from settings, creating the index backend, catalog,
// cloner and answer generator they select.
func NewService(settings *config.Settings, logger *slog.Logger) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := index.NewBackend(settings.Index, settings.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create index backend: %w", err)
	}

	catalog, err := index.LoadCatalog(index.CatalogPath(settings.Index))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to load index catalog: %w", err)
	}

	var cloner gitrepos.Cloner
	switch settings.Ingest.CloneBackend {
	case config.CloneBackendGoGit:
		cloner = gitrepos.NewGoGitCloner()
	default:
		cloner = gitrepos.NewGitClient()
	}

	svc, err := NewServiceWithDeps(settings, Deps{
		Store:     jobs.NewMemoryStore(),
		Adapter:   index.NewAdapter(backend, settings.Ingest.BatchSize, logger),
		Catalog:   catalog,
		Generator: answer.NewGeneratorFromSettings(settings.LLM, logger),
		Cloner:    cloner,
		Logger:    logger,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return svc, nil
}

// NewServiceWithDeps wires a Service around explicit collaborators.
func NewServiceWithDeps(settings *config.Settings, deps Deps) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := chunker.ParseMode(settings.Ingest.ChunkMode)
	if err != nil {
		return nil, err
	}
	filter := chunker.NewFileFilterWithPatterns(settings.Ingest.ExcludePatterns, settings.Ingest.MaxFileSize)
	walker := chunker.NewWalker(filter, chunker.Options{
		Mode:          mode,
		MaxChunkChars: settings.Ingest.ChunkSize,
		OverlapLines:  settings.Ingest.ChunkOverlap,
	}, logger)

	catalog := deps.Catalog
	if catalog == nil {
		catalog = index.NewCatalog()
	}
	generator := deps.Generator
	if generator == nil {
		generator = answer.NewGenerator(nil, settings.LLM.MaxContextTokens, logger)
	}

	steps := []Step{
		&CloneStep{
			Workspaces: gitrepos.NewWorkspaces(settings.Ingest.BaseDir, settings.Ingest.LockTimeout),
			Cloner:     deps.Cloner,
			Timeout:    settings.Ingest.CloneTimeout,
		},
		&ScanStep{Logger: logger},
		&ChunkStep{Walker: walker},
		&IndexStep{
			Adapter: deps.Adapter,
			Catalog: catalog,
			Timeout: settings.Ingest.IndexTimeout,
			Logger:  logger,
		},
	}

	return &Service{
		orchestrator: NewOrchestrator(deps.Store, steps, settings.Ingest.MaxParallelJobs, logger),
		store:        deps.Store,
		adapter:      deps.Adapter,
		catalog:      catalog,
		generator:    generator,
		policy: gitrepos.URLPolicy{
			AllowedHosts: settings.Ingest.AllowedHosts,
			AllowLocal:   settings.Ingest.AllowLocal,
		},
		logger:         logger,
		defaultToken:   settings.Ingest.Token,
		allowAnonymous: settings.Ingest.AllowAnonymous,
		maxResults:     settings.Index.MaxResults,
	}, nil
}

// Submit validates the request and starts an ingestion job.
// An empty token falls back to the configured default token.
func (s *Service) Submit(repoURL, sessionID, token string) (*jobs.Job, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	ref, err := gitrepos.ParseRepoURL(repoURL, s.policy)
	if err != nil {
		return nil, err
	}

	credential := strings.TrimSpace(token)
	if ref.Scheme == gitrepos.SchemeHTTP && credential != "" {
		return nil, fmt.Errorf("%w: tokens are only sent over https, got %s", domain.ErrUnauthorized, repoURL)
	}
	if credential == "" && ref.Scheme != gitrepos.SchemeHTTP {
		credential = s.defaultToken
	}
	remote := ref.Scheme == gitrepos.SchemeHTTPS || ref.Scheme == gitrepos.SchemeHTTP
	if credential == "" && remote && !s.allowAnonymous {
		return nil, fmt.Errorf("%w: a token is required to fetch %s", domain.ErrUnauthorized, ref.Display())
	}

	return s.orchestrator.Submit(ref, credential, sessionID)
}

// Status returns the job without its chunk list.
func (s *Service) Status(jobID string) (*jobs.Job, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	return job.WithoutChunks(), nil
}

// ListChunks returns the chunk metadata of a completed job.
func (s *Service) ListChunks(jobID string) ([]domain.ChunkMeta, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrNotReady, jobID, job.Status)
	}
	if job.Chunks == nil {
		return []domain.ChunkMeta{}, nil
	}
	return job.Chunks, nil
}

// Cancel stops an in-flight job. It returns false when the job already settled.
func (s *Service) Cancel(jobID string) (bool, error) {
	return s.orchestrator.Cancel(jobID)
}

// Jobs returns all jobs newest first, without chunk lists.
func (s *Service) Jobs() []*jobs.Job {
	all := s.store.List()
	out := make([]*jobs.Job, len(all))
	for i, j := range all {
		out[i] = j.WithoutChunks()
	}
	return out
}

// SessionJobs returns the jobs submitted by a session, newest first, without chunk lists.
func (s *Service) SessionJobs(sessionID string) ([]*jobs.Job, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	var out []*jobs.Job
	for _, j := range s.store.List() {
		if j.SessionID == sessionID {
			out = append(out, j.WithoutChunks())
		}
	}
	return out, nil
}

// Collections returns what the session has indexed, most recent first.
func (s *Service) Collections(sessionID string) ([]index.CatalogEntry, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	entries := s.catalog.ForSession(sessionID)
	if entries == nil {
		entries = []index.CatalogEntry{}
	}
	return entries, nil
}

// Query returns up to topN ranked snippets for the (repository, session) pair.
// A pair that was never ingested yields an empty list.
func (s *Service) Query(ctx context.Context, repoURL, sessionID, text string, topN int) ([]index.Hit, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	ref, err := gitrepos.ParseRepoURL(repoURL, s.policy)
	if err != nil {
		return nil, err
	}
	return s.adapter.Query(ctx, ref.Key(), sessionID, text, s.clampTopN(topN))
}

// QuestionResponse is the answer to a question together with the snippets it was built from.
type QuestionResponse struct {
	Question string      `json:"question"`
	RepoURL  string      `json:"repo_url"`
	Snippets []index.Hit `json:"snippets"`
	answer.Answer
}

// Ask answers a question about an ingested repository from its top ranked snippets.
// Model failures are reported in the response, not as an error.
func (s *Service) Ask(ctx context.Context, repoURL, sessionID, question string, topN int) (*QuestionResponse, error) {
	hits, err := s.Query(ctx, repoURL, sessionID, question, topN)
	if err != nil {
		return nil, err
	}
	return &QuestionResponse{
		Question: question,
		RepoURL:  repoURL,
		Snippets: hits,
		Answer:   s.generator.Answer(ctx, question, hits),
	}, nil
}

// Wait blocks until every submitted job has settled.
func (s *Service) Wait() {
	s.orchestrator.Wait()
}

// Close cancels running jobs, waits for them, and closes the index.
func (s *Service) Close(ctx context.Context) error {
	err := s.orchestrator.Shutdown(ctx)
	return errors.Join(err, s.adapter.Close())
}

func (s *Service) clampTopN(topN int) int {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if s.maxResults > 0 && topN > s.maxResults {
		topN = s.maxResults
	}
	return topN
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrUnauthorized)
	}
	return nil
}
