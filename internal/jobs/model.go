package jobs

import (
	"slices"
	"time"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// Status is a job state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusChunking    Status = "chunking"
	StatusEmbedding   Status = "embedding"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// sequence is the forward path every successful job walks through.
var sequence = []Status{
	StatusPending,
	StatusDownloading,
	StatusProcessing,
	StatusChunking,
	StatusEmbedding,
	StatusCompleted,
}

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusFailed || slices.Contains(sequence, s)
}

// CanTransition reports whether a job in status from may move to status to.
// Jobs advance one stage at a time, may repeat their current non-terminal stage
// (message-only updates), and may fail from any non-terminal stage.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == StatusFailed || to == from {
		return true
	}
	i := slices.Index(sequence, from)
	return i >= 0 && i+1 < len(sequence) && sequence[i+1] == to
}

// IndexSummary describes what the indexing adapter stored for a job.
type IndexSummary struct {
	Collection  string `json:"collection"`
	StoredCount int    `json:"stored_count"`
}

// Job is one repository-ingestion request and its tracked progress.
type Job struct {
	ID        string    `json:"job_id"`
	RepoURL   string    `json:"repo_url"`
	RepoID    string    `json:"repo_id"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Commit is the checked-out HEAD, known once the tree is fetched.
	Commit string `json:"commit,omitempty"`

	// ChunkCount is set once chunking has finished.
	ChunkCount *int `json:"chunk_count,omitempty"`

	// Index is set once replace-ingest has finished.
	Index *IndexSummary `json:"index,omitempty"`

	// Chunks is only present on completed jobs and never carries content.
	Chunks []domain.ChunkMeta `json:"chunks,omitempty"`

	// Diagnostics are notes appended after the job settled.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.ChunkCount != nil {
		n := *j.ChunkCount
		c.ChunkCount = &n
	}
	if j.Index != nil {
		idx := *j.Index
		c.Index = &idx
	}
	c.Chunks = slices.Clone(j.Chunks)
	c.Diagnostics = slices.Clone(j.Diagnostics)
	return &c
}

// WithoutChunks returns a copy of the job without the chunk metadata list.
func (j *Job) WithoutChunks() *Job {
	c := j.Clone()
	c.Chunks = nil
	return c
}

// Fragment is a partial result merged into a job by an update.
// Nil and empty fields leave the job untouched.
type Fragment struct {
	Commit     string
	ChunkCount *int
	Index      *IndexSummary
	Chunks     []domain.ChunkMeta
}

// Update replaces a job's status, message and error, and merges an optional result fragment.
type Update struct {
	Status  Status
	Message string
	Error   string
	Result  *Fragment
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
