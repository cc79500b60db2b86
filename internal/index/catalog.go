package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// CatalogVersion is the current schema version
	CatalogVersion = 1

	// CatalogFilename is the catalog file name under the index path
	CatalogFilename = "catalog.json"
)

// Catalog records what each collection currently holds, so persisted indexes
// can be listed after a restart. A catalog without a path lives in memory only.
type Catalog struct {
	Version     int                     `json:"version"`
	Collections map[string]CatalogEntry `json:"collections"`

	path string
	mu   sync.RWMutex

	// saveMu serializes snapshot, write and rename so the newest snapshot lands last.
	saveMu sync.Mutex
}

// CatalogEntry describes the last replace-ingest of one collection.
type CatalogEntry struct {
	Collection    string    `json:"collection"`
	RepoKey       string    `json:"repo_key"`
	SessionDigest string    `json:"session_digest"`
	Commit        string    `json:"commit,omitempty"`
	JobID         string    `json:"job_id"`
	StoredCount   int       `json:"stored_count"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// SessionDigest returns the form in which a session is stored in the catalog.
func SessionDigest(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}

// NewCatalog creates an empty in-memory catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		Version:     CatalogVersion,
		Collections: make(map[string]CatalogEntry),
	}
}

// LoadCatalog reads the catalog at path, or creates an empty one if the file doesn't exist.
// An empty path yields an in-memory catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	if path == "" {
		return c, nil
	}
	c.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.Collections == nil {
		c.Collections = make(map[string]CatalogEntry)
	}
	return c, nil
}

// Record stores entry, replacing any previous entry for the same collection, and saves the catalog.
func (c *Catalog) Record(entry CatalogEntry) error {
	c.mu.Lock()
	c.Collections[entry.Collection] = entry
	c.mu.Unlock()
	return c.save()
}

// Get returns the entry for a collection.
func (c *Catalog) Get(collection string) (CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.Collections[collection]
	return e, ok
}

// ForSession returns the entries owned by a session, most recently indexed first.
func (c *Catalog) ForSession(sessionID string) []CatalogEntry {
	digest := SessionDigest(sessionID)

	c.mu.RLock()
	var out []CatalogEntry
	for _, e := range c.Collections {
		if e.SessionDigest == digest {
			out = append(out, e)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b CatalogEntry) int {
		if n := b.IndexedAt.Compare(a.IndexedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Collection, b.Collection)
	})
	return out
}

// save writes the catalog atomically with the write-to-temp + rename pattern.
func (c *Catalog) save() error {
	if c.path == "" {
		return nil
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create catalog temp file: %w", err)
	}
	tempPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write catalog temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close catalog temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to set catalog file mode: %w", err)
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename catalog file: %w", err)
	}
	return nil
}
