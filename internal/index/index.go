// Package index maps (repository, session) pairs to isolated collections of indexed code chunks
// and answers nearest-neighbor queries over them.
package index

import (
	"context"
	"errors"
	"strconv"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// DefaultBatchSize is the number of items sent to a backend per upsert call.
const DefaultBatchSize = 100

// ErrEmptyQuery indicates a query without text.
var ErrEmptyQuery = errors.New("query text cannot be empty")

// Metadata is stored alongside every indexed chunk.
type Metadata struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Language  string `json:"language"`
	JobID     string `json:"job_id"`
}

// Item is one chunk as handed to a backend. ID is the chunk identity and acts as primary key.
type Item struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Hit is a query result.
type Hit struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	// Distance is non-negative; smaller is closer.
	Distance float64 `json:"distance"`
}

// Collection is a handle to a collection owned by one (repository, session) pair.
type Collection struct {
	Name string
}

// Summary describes the outcome of a replace-ingest.
type Summary struct {
	Collection  string `json:"collection"`
	StoredCount int    `json:"stored_count"`
}

// Backend is the storage collaborator behind the Adapter.
// Implementations must be safe for concurrent use across distinct collections.
type Backend interface {
	// HasCollection reports whether the named collection exists.
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection creates the named collection if it does not exist.
	CreateCollection(ctx context.Context, name string) error

	// DeleteCollection removes the named collection and all of its items. Missing collections are not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Upsert inserts or replaces items by ID.
	Upsert(ctx context.Context, name string, items []Item) error

	// Count returns the number of items stored in the named collection.
	Count(ctx context.Context, name string) (int, error)

	// Query returns up to n items nearest to text, ordered by ascending distance.
	Query(ctx context.Context, name, text string, n int) ([]Hit, error)

	// Close releases backend resources.
	Close() error
}

// ItemFromChunk converts a chunk produced by the chunker into an indexable item owned by jobID.
func ItemFromChunk(c domain.CodeChunk, jobID string) Item {
	return Item{
		ID:      c.ID,
		Content: c.Content,
		Metadata: Metadata{
			FilePath:  c.FilePath,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Language:  c.Language,
			JobID:     jobID,
		},
	}
}

// ToMap flattens metadata into string pairs keyed by the domain field names.
func (m Metadata) ToMap() map[string]string {
	return map[string]string{
		domain.CodeFieldFilePath:  m.FilePath,
		domain.CodeFieldStartLine: strconv.Itoa(m.StartLine),
		domain.CodeFieldEndLine:   strconv.Itoa(m.EndLine),
		domain.CodeFieldLanguage:  m.Language,
		domain.CodeFieldJobID:     m.JobID,
	}
}

// MetadataFromMap is the inverse of Metadata.ToMap. Malformed line numbers decode as zero.
func MetadataFromMap(m map[string]string) Metadata {
	start, _ := strconv.Atoi(m[domain.CodeFieldStartLine])
	end, _ := strconv.Atoi(m[domain.CodeFieldEndLine])
	return Metadata{
		FilePath:  m[domain.CodeFieldFilePath],
		StartLine: start,
		EndLine:   end,
		Language:  m[domain.CodeFieldLanguage],
		JobID:     m[domain.CodeFieldJobID],
	}
}
