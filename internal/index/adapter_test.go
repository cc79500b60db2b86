package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// recordingBackend wraps a Backend and records upsert batch sizes.
type recordingBackend struct {
	Backend
	batches   []int
	failAfter int // fail the upsert after this many successful batches; <0 never fails
}

func (r *recordingBackend) Upsert(ctx context.Context, name string, items []Item) error {
	if r.failAfter >= 0 && len(r.batches) >= r.failAfter {
		return errors.New("backend unavailable")
	}
	r.batches = append(r.batches, len(items))
	return r.Backend.Upsert(ctx, name, items)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T, batchSize int) (*Adapter, *recordingBackend) {
	t.Helper()
	store, err := NewChromemStore("", false, NewHashEmbedding(64), discardLogger())
	if err != nil {
		t.Fatalf("NewChromemStore failed: %v", err)
	}
	rec := &recordingBackend{Backend: store, failAfter: -1}
	return NewAdapter(rec, batchSize, discardLogger()), rec
}

func makeChunks(n int) []domain.CodeChunk {
	chunks := make([]domain.CodeChunk, n)
	for i := range chunks {
		path := fmt.Sprintf("pkg/file%d.go", i)
		chunks[i] = domain.CodeChunk{
			ID:        domain.ChunkID(path, 1, 3),
			FilePath:  path,
			StartLine: 1,
			EndLine:   3,
			Language:  "go",
			Content:   fmt.Sprintf("package pkg\n\nfunc Handler%d() {}\n", i),
		}
	}
	return chunks
}

func TestCollectionIdentity(t *testing.T) {
	a := CollectionIdentity("github.com/org/repo", "session-1")
	b := CollectionIdentity("github.com/org/repo", "session-1")
	c := CollectionIdentity("github.com/org/repo", "session-2")
	d := CollectionIdentity("github.com/org/other", "session-1")

	if a != b {
		t.Errorf("Expected identical inputs to yield the same identity, got %q and %q", a, b)
	}
	if a == c {
		t.Error("Expected a different session to yield a different identity")
	}
	if a == d {
		t.Error("Expected a different repository to yield a different identity")
	}
	if !strings.HasPrefix(a, "repo_") || len(a) != len("repo_")+32 {
		t.Errorf("Unexpected identity format: %q", a)
	}
	// The separator keeps concatenation ambiguities apart
	if CollectionIdentity("ab", "c") == CollectionIdentity("a", "bc") {
		t.Error("Expected (ab, c) and (a, bc) to differ")
	}
}

func TestAdapter_CreateOrGetCollection(t *testing.T) {
	adapter, _ := newTestAdapter(t, 10)
	ctx := context.Background()

	coll, created, err := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if err != nil {
		t.Fatalf("CreateOrGetCollection failed: %v", err)
	}
	if !created {
		t.Error("Expected first call to create the collection")
	}
	if coll.Name != CollectionIdentity("github.com/org/repo", "s1") {
		t.Errorf("Collection name = %q", coll.Name)
	}

	again, created, err := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if err != nil {
		t.Fatalf("Second CreateOrGetCollection failed: %v", err)
	}
	if created {
		t.Error("Expected second call to reuse the collection")
	}
	if again.Name != coll.Name {
		t.Errorf("Expected same collection, got %q and %q", coll.Name, again.Name)
	}
}

func TestAdapter_ReplaceIngest_Batches(t *testing.T) {
	adapter, rec := newTestAdapter(t, 2)
	ctx := context.Background()

	coll, _, err := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if err != nil {
		t.Fatalf("CreateOrGetCollection failed: %v", err)
	}

	summary, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(5))
	if err != nil {
		t.Fatalf("ReplaceIngest failed: %v", err)
	}

	if summary.StoredCount != 5 {
		t.Errorf("StoredCount = %d, want 5", summary.StoredCount)
	}
	if summary.Collection != coll.Name {
		t.Errorf("Collection = %q, want %q", summary.Collection, coll.Name)
	}
	if fmt.Sprint(rec.batches) != "[2 2 1]" {
		t.Errorf("Expected batches [2 2 1], got %v", rec.batches)
	}
}

func TestAdapter_ReplaceIngest_ReplacesRatherThanDuplicates(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)
	ctx := context.Background()

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if _, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(4)); err != nil {
		t.Fatalf("First ReplaceIngest failed: %v", err)
	}

	// Second ingestion with a different chunk set
	chunks := makeChunks(2)
	chunks[0].ID = "other.go:1-1"
	coll, created, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if created {
		t.Error("Expected the collection to be reused")
	}
	summary, err := adapter.ReplaceIngest(ctx, coll, "job-2", chunks)
	if err != nil {
		t.Fatalf("Second ReplaceIngest failed: %v", err)
	}

	if summary.StoredCount != 2 {
		t.Errorf("StoredCount = %d, want 2 (the second ingestion only)", summary.StoredCount)
	}

	hits, err := adapter.Query(ctx, "github.com/org/repo", "s1", "Handler", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, h := range hits {
		if h.Metadata.JobID != "job-2" {
			t.Errorf("Found item from a replaced ingestion: %+v", h)
		}
	}
}

func TestAdapter_ReplaceIngest_Empty(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)
	ctx := context.Background()

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if _, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(3)); err != nil {
		t.Fatalf("ReplaceIngest failed: %v", err)
	}

	summary, err := adapter.ReplaceIngest(ctx, coll, "job-2", nil)
	if err != nil {
		t.Fatalf("Empty ReplaceIngest failed: %v", err)
	}
	if summary.StoredCount != 0 {
		t.Errorf("StoredCount = %d, want 0", summary.StoredCount)
	}
}

func TestAdapter_ReplaceIngest_BackendFailure(t *testing.T) {
	adapter, rec := newTestAdapter(t, 2)
	rec.failAfter = 1
	ctx := context.Background()

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	_, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(5))
	if !errors.Is(err, domain.ErrIndexingFailure) {
		t.Fatalf("Expected ErrIndexingFailure, got %v", err)
	}
}

func TestAdapter_ReplaceIngest_Canceled(t *testing.T) {
	adapter, _ := newTestAdapter(t, 2)
	ctx, cancel := context.WithCancel(context.Background())

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	cancel()

	_, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(3))
	if !errors.Is(err, domain.ErrIndexingFailure) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected canceled indexing failure, got %v", err)
	}
}

func TestAdapter_Query_NoCollection(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)

	hits, err := adapter.Query(context.Background(), "github.com/org/never", "s1", "anything", 5)
	if err != nil {
		t.Fatalf("Expected soft failure, got %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("Expected an empty, non-nil result, got %v", hits)
	}
}

func TestAdapter_Query_SessionIsolation(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)
	ctx := context.Background()

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	if _, err := adapter.ReplaceIngest(ctx, coll, "job-1", makeChunks(3)); err != nil {
		t.Fatalf("ReplaceIngest failed: %v", err)
	}

	hits, err := adapter.Query(ctx, "github.com/org/repo", "s2", "Handler", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits for another session, got %d", len(hits))
	}
}

func TestAdapter_Query_OrderAndLimit(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)
	ctx := context.Background()

	coll, _, _ := adapter.CreateOrGetCollection(ctx, "github.com/org/repo", "s1")
	chunks := []domain.CodeChunk{
		{ID: "a.py:1-2", FilePath: "a.py", StartLine: 1, EndLine: 2, Language: "python", Content: "def parse_config(path):\n    return load(path)\n"},
		{ID: "b.py:1-2", FilePath: "b.py", StartLine: 1, EndLine: 2, Language: "python", Content: "def render_page(ctx):\n    return html(ctx)\n"},
		{ID: "c.py:1-2", FilePath: "c.py", StartLine: 1, EndLine: 2, Language: "python", Content: "def send_mail(to):\n    return smtp(to)\n"},
	}
	if _, err := adapter.ReplaceIngest(ctx, coll, "job-1", chunks); err != nil {
		t.Fatalf("ReplaceIngest failed: %v", err)
	}

	hits, err := adapter.Query(ctx, "github.com/org/repo", "s1", "parse config path", 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("Expected topN to be capped at the stored count (3), got %d", len(hits))
	}
	if hits[0].ID != "a.py:1-2" {
		t.Errorf("Expected closest hit a.py:1-2, got %s", hits[0].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("Hits not ordered by ascending distance: %v", hits)
		}
	}
	if hits[0].Metadata.FilePath != "a.py" || hits[0].Metadata.StartLine != 1 || hits[0].Metadata.EndLine != 2 {
		t.Errorf("Unexpected metadata: %+v", hits[0].Metadata)
	}

	limited, _ := adapter.Query(ctx, "github.com/org/repo", "s1", "parse config path", 1)
	if len(limited) != 1 {
		t.Errorf("Expected 1 hit, got %d", len(limited))
	}
}

func TestAdapter_Query_EmptyText(t *testing.T) {
	adapter, _ := newTestAdapter(t, 100)

	if _, err := adapter.Query(context.Background(), "r", "s", "   ", 5); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Expected ErrEmptyQuery, got %v", err)
	}
}

func TestMetadata_MapRoundTrip(t *testing.T) {
	m := Metadata{FilePath: "src/app.js", StartLine: 10, EndLine: 42, Language: "javascript", JobID: "j"}

	got := MetadataFromMap(m.ToMap())
	if got != m {
		t.Errorf("MetadataFromMap(ToMap()) = %+v, want %+v", got, m)
	}
	if got := MetadataFromMap(map[string]string{domain.CodeFieldStartLine: "x"}); got.StartLine != 0 {
		t.Errorf("Expected malformed line to decode as 0, got %d", got.StartLine)
	}
}
