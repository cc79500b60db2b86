package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is a vector Backend on chromem-go.
// An empty path keeps all collections in memory; otherwise they are persisted below path.
type ChromemStore struct {
	db     *chromem.DB
	embed  chromem.EmbeddingFunc
	logger *slog.Logger
}

// NewChromemStore opens (or creates) a chromem database.
func NewChromemStore(path string, compress bool, embed chromem.EmbeddingFunc, logger *slog.Logger) (*ChromemStore, error) {
	if embed == nil {
		return nil, fmt.Errorf("chromem store requires an embedding function")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", path, err)
		}
	}

	logger.Info("Opened vector store", "backend", "chromem", "path", path, "collections", len(db.ListCollections()))
	return &ChromemStore{db: db, embed: embed, logger: logger}, nil
}

// collection returns the named collection or nil.
// The embedding function is always passed so persisted collections never fall back to chromem's default.
func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, s.embed)
}

// HasCollection reports whether the named collection exists.
func (s *ChromemStore) HasCollection(_ context.Context, name string) (bool, error) {
	return s.collection(name) != nil, nil
}

// CreateCollection creates the named collection if it does not exist.
func (s *ChromemStore) CreateCollection(_ context.Context, name string) error {
	if _, err := s.db.GetOrCreateCollection(name, nil, s.embed); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection removes the named collection.
func (s *ChromemStore) DeleteCollection(_ context.Context, name string) error {
	if s.collection(name) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Upsert embeds and stores items. Documents with an existing ID are overwritten.
func (s *ChromemStore) Upsert(ctx context.Context, name string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	coll := s.collection(name)
	if coll == nil {
		return fmt.Errorf("collection %s does not exist", name)
	}

	docs := make([]chromem.Document, len(items))
	for i, it := range items {
		docs[i] = chromem.Document{
			ID:       it.ID,
			Content:  it.Content,
			Metadata: it.Metadata.ToMap(),
		}
	}

	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to %s: %w", name, err)
	}
	return nil
}

// Count returns the number of documents in the named collection. Missing collections count as zero.
func (s *ChromemStore) Count(_ context.Context, name string) (int, error) {
	coll := s.collection(name)
	if coll == nil {
		return 0, nil
	}
	return coll.Count(), nil
}

// Query returns the nearest documents by cosine similarity, reported as distance 1-similarity.
func (s *ChromemStore) Query(ctx context.Context, name, text string, n int) ([]Hit, error) {
	coll := s.collection(name)
	if coll == nil {
		return []Hit{}, nil
	}

	// chromem requires nResults <= document count
	count := coll.Count()
	if count == 0 || n <= 0 {
		return []Hit{}, nil
	}
	n = min(n, count)

	results, err := coll.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: MetadataFromMap(r.Metadata),
			Distance: max(0, 1-float64(r.Similarity)),
		}
	}
	return hits, nil
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}
