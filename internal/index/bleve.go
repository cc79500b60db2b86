package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

const (
	// IndexSuffix is the suffix for collection index directories
	IndexSuffix = ".bleve"

	// symbolsBoost weighs identifier matches above plain content matches
	symbolsBoost = 5.0
)

// codeDocument is the Bleve document for one chunk.
type codeDocument struct {
	ID        string   `json:"id"`
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Language  string   `json:"language"`
	JobID     string   `json:"job_id"`
	Content   string   `json:"content"`
	Symbols   []string `json:"symbols"`
}

// BleveStore is a lexical Backend with one Bleve index per collection.
// An empty baseDir keeps every index in memory.
type BleveStore struct {
	baseDir string
	logger  *slog.Logger

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// NewBleveStore creates a store rooted at baseDir.
func NewBleveStore(baseDir string, logger *slog.Logger) (*BleveStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index dir: %w", err)
		}
	}
	logger.Info("Opened lexical store", "backend", "bleve", "path", baseDir)
	return &BleveStore{
		baseDir: baseDir,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// CreateIndexMapping creates the Bleve index mapping for code chunks.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Content field - analyzed for full-text search
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldContent, contentField)

	// Symbols - analyzed, not stored
	symbolsField := bleve.NewTextFieldMapping()
	symbolsField.Analyzer = standard.Name
	symbolsField.Store = false
	docMapping.AddFieldMappingsAt(domain.CodeFieldSymbols, symbolsField)

	// Keyword fields, stored for retrieval
	for _, name := range []string{domain.CodeFieldFilePath, domain.CodeFieldLanguage, domain.CodeFieldJobID} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	// Line numbers
	for _, name := range []string{domain.CodeFieldStartLine, domain.CodeFieldEndLine} {
		f := bleve.NewNumericFieldMapping()
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	// ID - stored but not indexed (we use the document ID)
	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// indexPath returns the on-disk location of a collection.
func (s *BleveStore) indexPath(name string) string {
	return filepath.Join(s.baseDir, name+IndexSuffix)
}

// open returns the open index for name, opening it from disk when present.
// Must be called with s.mu held.
func (s *BleveStore) open(name string) (bleve.Index, error) {
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	if s.baseDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(s.indexPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	idx, err := bleve.Open(s.indexPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	s.indexes[name] = idx
	return idx, nil
}

// HasCollection reports whether the named collection exists.
func (s *BleveStore) HasCollection(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.open(name)
	if err != nil {
		return false, err
	}
	return idx != nil, nil
}

// CreateCollection creates the named index if it does not exist.
func (s *BleveStore) CreateCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.open(name)
	if err != nil {
		return err
	}
	if idx != nil {
		return nil
	}

	if s.baseDir == "" {
		idx, err = bleve.NewMemOnly(CreateIndexMapping())
	} else {
		idx, err = bleve.New(s.indexPath(name), CreateIndexMapping())
	}
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	s.indexes[name] = idx
	return nil
}

// DeleteCollection closes and removes the named index.
func (s *BleveStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		delete(s.indexes, name)
		if err := idx.Close(); err != nil {
			s.logger.Warn("Failed to close index", "collection", name, "error", err)
		}
	}
	if s.baseDir == "" {
		return nil
	}
	return os.RemoveAll(s.indexPath(name))
}

// Upsert indexes items in a single batch.
func (s *BleveStore) Upsert(_ context.Context, name string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	idx, err := s.get(name)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, it := range items {
		doc := codeDocument{
			ID:        it.ID,
			FilePath:  it.Metadata.FilePath,
			StartLine: it.Metadata.StartLine,
			EndLine:   it.Metadata.EndLine,
			Language:  it.Metadata.Language,
			JobID:     it.Metadata.JobID,
			Content:   it.Content,
			Symbols:   ExtractSymbols(it.Metadata.Language, it.Content),
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("index %s: %w", doc.ID, err)
		}
	}

	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("batch index failed: %w", err)
	}
	return nil
}

// Count returns the number of documents in the named index. Missing collections count as zero.
func (s *BleveStore) Count(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	idx, err := s.open(name)
	s.mu.Unlock()
	if err != nil || idx == nil {
		return 0, err
	}

	n, err := idx.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Query runs a match query over content, boosted by declared symbols.
// Scores are mapped to distances as 1/(1+score).
func (s *BleveStore) Query(ctx context.Context, name, text string, n int) ([]Hit, error) {
	s.mu.Lock()
	idx, err := s.open(name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if idx == nil || n <= 0 {
		return []Hit{}, nil
	}

	req := bleve.NewSearchRequest(buildQuery(text))
	req.Size = n
	req.Fields = []string{
		domain.CodeFieldContent,
		domain.CodeFieldFilePath,
		domain.CodeFieldStartLine,
		domain.CodeFieldEndLine,
		domain.CodeFieldLanguage,
		domain.CodeFieldJobID,
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{
			ID:       h.ID,
			Content:  stringField(h.Fields, domain.CodeFieldContent),
			Metadata: Metadata{
				FilePath:  stringField(h.Fields, domain.CodeFieldFilePath),
				StartLine: intField(h.Fields, domain.CodeFieldStartLine),
				EndLine:   intField(h.Fields, domain.CodeFieldEndLine),
				Language:  stringField(h.Fields, domain.CodeFieldLanguage),
				JobID:     stringField(h.Fields, domain.CodeFieldJobID),
			},
			Distance: 1 / (1 + h.Score),
		})
	}
	return hits, nil
}

// Close closes all open indexes.
func (s *BleveStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.indexes, name)
	}
	return errors.Join(errs...)
}

// get returns an existing index or an error if the collection was never created.
func (s *BleveStore) get(name string) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.open(name)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	return idx, nil
}

// buildQuery matches content, with symbol matches boosted.
func buildQuery(text string) query.Query {
	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField(domain.CodeFieldContent)

	symbolsQuery := bleve.NewMatchQuery(text)
	symbolsQuery.SetField(domain.CodeFieldSymbols)
	symbolsQuery.SetBoost(symbolsBoost)

	return bleve.NewDisjunctionQuery(contentQuery, symbolsQuery)
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// intField reads a stored numeric field; Bleve returns numbers as float64.
func intField(fields map[string]interface{}, name string) int {
	if v, ok := fields[name].(float64); ok {
		return int(v)
	}
	return 0
}
