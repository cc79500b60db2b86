package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// collectionPrefix keeps collection names valid identifiers for every backend.
const collectionPrefix = "repo_"

// Adapter implements create-or-reuse and replace-ingest semantics on top of a Backend.
type Adapter struct {
	backend   Backend
	batchSize int
	logger    *slog.Logger
}

// NewAdapter creates an adapter. A non-positive batchSize selects DefaultBatchSize.
func NewAdapter(backend Backend, batchSize int, logger *slog.Logger) *Adapter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		backend:   backend,
		batchSize: batchSize,
		logger:    logger,
	}
}

// CollectionIdentity derives the collection name for a repository key and session.
// It is a name-based (SHA-1) UUID, so identical inputs always map to the same collection
// and a different session never shares a collection with another.
func CollectionIdentity(repoKey, sessionID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(repoKey+"\x00"+sessionID))
	return collectionPrefix + strings.ReplaceAll(id.String(), "-", "")
}

// CreateOrGetCollection returns the collection for the pair, creating it when missing.
func (a *Adapter) CreateOrGetCollection(ctx context.Context, repoKey, sessionID string) (Collection, bool, error) {
	name := CollectionIdentity(repoKey, sessionID)

	exists, err := a.backend.HasCollection(ctx, name)
	if err != nil {
		return Collection{}, false, fmt.Errorf("%w: lookup collection %s: %w", domain.ErrIndexingFailure, name, err)
	}
	if exists {
		return Collection{Name: name}, false, nil
	}

	if err := a.backend.CreateCollection(ctx, name); err != nil {
		return Collection{}, false, fmt.Errorf("%w: create collection %s: %w", domain.ErrIndexingFailure, name, err)
	}
	a.logger.Debug("Created collection", "collection", name)
	return Collection{Name: name}, true, nil
}

// ReplaceIngest clears the collection if it holds data, then stores chunks in fixed-size batches.
// The returned summary reflects what the backend reports after the last batch.
func (a *Adapter) ReplaceIngest(ctx context.Context, coll Collection, jobID string, chunks []domain.CodeChunk) (Summary, error) {
	existing, err := a.backend.Count(ctx, coll.Name)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: count %s: %w", domain.ErrIndexingFailure, coll.Name, err)
	}

	if existing > 0 {
		a.logger.Info("Clearing collection before re-ingest", "collection", coll.Name, "existing", existing)
		if err := a.backend.DeleteCollection(ctx, coll.Name); err != nil {
			return Summary{}, fmt.Errorf("%w: clear %s: %w", domain.ErrIndexingFailure, coll.Name, err)
		}
		if err := a.backend.CreateCollection(ctx, coll.Name); err != nil {
			return Summary{}, fmt.Errorf("%w: recreate %s: %w", domain.ErrIndexingFailure, coll.Name, err)
		}
	}

	for start := 0; start < len(chunks); start += a.batchSize {
		if err := ctx.Err(); err != nil {
			return Summary{}, fmt.Errorf("%w: %w", domain.ErrIndexingFailure, err)
		}

		end := min(start+a.batchSize, len(chunks))
		batch := make([]Item, 0, end-start)
		for _, c := range chunks[start:end] {
			batch = append(batch, ItemFromChunk(c, jobID))
		}

		if err := a.backend.Upsert(ctx, coll.Name, batch); err != nil {
			return Summary{}, fmt.Errorf("%w: batch %d-%d of %d: %w", domain.ErrIndexingFailure, start, end, len(chunks), err)
		}
		a.logger.Debug("Stored batch", "collection", coll.Name, "from", start, "to", end)
	}

	stored, err := a.backend.Count(ctx, coll.Name)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: count %s: %w", domain.ErrIndexingFailure, coll.Name, err)
	}

	return Summary{Collection: coll.Name, StoredCount: stored}, nil
}

// Query returns up to topN hits for the pair ordered by ascending distance.
// A pair that was never ingested yields an empty result.
func (a *Adapter) Query(ctx context.Context, repoKey, sessionID, text string, topN int) ([]Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if topN <= 0 {
		return []Hit{}, nil
	}

	name := CollectionIdentity(repoKey, sessionID)
	exists, err := a.backend.HasCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("lookup collection %s: %w", name, err)
	}
	if !exists {
		return []Hit{}, nil
	}

	hits, err := a.backend.Query(ctx, name, text, topN)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", name, err)
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

// Close releases the backend.
func (a *Adapter) Close() error {
	return a.backend.Close()
}
