package jobs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// ErrInvalidTransition indicates an update that would regress, skip a stage, or mutate a settled job.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the concurrency-safe keyed store of job records.
// Returned jobs are copies; mutating them does not affect the store.
type Store interface {
	// Create allocates a new job in the pending state.
	Create(repoURL, repoID, sessionID string) *Job

	// Update atomically applies a status transition and merges the result fragment.
	Update(id string, u Update) (*Job, error)

	// Get returns the job with the given id, or domain.ErrJobNotFound.
	Get(id string) (*Job, error)

	// List returns all jobs, newest first.
	List() []*Job

	// AppendDiagnostic records a note on a job in any state.
	AppendDiagnostic(id, note string) error
}

// MemoryStore keeps jobs in a mutex-guarded map for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create allocates a new job in the pending state.
func (s *MemoryStore) Create(repoURL, repoID, sessionID string) *Job {
	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		RepoURL:   repoURL,
		RepoID:    repoID,
		SessionID: sessionID,
		Status:    StatusPending,
		Message:   "Job created",
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job.Clone()
}

// Update atomically applies a status transition and merges the result fragment.
// Chunk metadata is only accepted together with the transition to completed.
func (s *MemoryStore) Update(id string, u Update) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}

	if !CanTransition(job.Status, u.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, u.Status)
	}
	if u.Result != nil && u.Result.Chunks != nil && u.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: chunk metadata can only be published on completion", ErrInvalidTransition)
	}

	job.Status = u.Status
	job.Message = u.Message
	job.Error = u.Error
	job.UpdatedAt = s.now()

	if r := u.Result; r != nil {
		if r.Commit != "" {
			job.Commit = r.Commit
		}
		if r.ChunkCount != nil {
			job.ChunkCount = IntPtr(*r.ChunkCount)
		}
		if r.Index != nil {
			idx := *r.Index
			job.Index = &idx
		}
		if r.Chunks != nil {
			job.Chunks = slices.Clone(r.Chunks)
		}
	}

	return job.Clone(), nil
}

// Get returns a copy of the job with the given id.
func (s *MemoryStore) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// List returns copies of all jobs without chunk metadata, newest first.
func (s *MemoryStore) List() []*Job {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.WithoutChunks())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// AppendDiagnostic records a note on a job. It is the only mutation allowed on settled jobs.
func (s *MemoryStore) AppendDiagnostic(id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	job.Diagnostics = append(job.Diagnostics, note)
	return nil
}
