package index

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sha1n/mcp-repo-ingest/internal/config"
)

// MemoryPath selects an in-memory backend instead of on-disk persistence.
const MemoryPath = "memory"

// NewBackend creates the Backend selected by settings.
//   - "chromem" (default): embedded vector store, embeddings from the configured provider
//   - "bleve": lexical full-text index, no embeddings
func NewBackend(idx config.IndexSettings, emb config.EmbeddingSettings, logger *slog.Logger) (Backend, error) {
	path := idx.Path
	if path == MemoryPath {
		path = ""
	}

	switch idx.Backend {
	case config.IndexBackendChromem, "":
		embed, err := NewEmbeddingFunc(emb)
		if err != nil {
			return nil, err
		}
		if path != "" {
			path = filepath.Join(path, "chromem")
		}
		return NewChromemStore(path, idx.Compress, embed, logger)

	case config.IndexBackendBleve:
		if path != "" {
			path = filepath.Join(path, "bleve")
		}
		return NewBleveStore(path, logger)

	default:
		return nil, fmt.Errorf("unsupported index backend: %s (supported: chromem, bleve)", idx.Backend)
	}
}

// CatalogPath returns where the catalog of the selected backend lives, or "" for in-memory indexes.
func CatalogPath(idx config.IndexSettings) string {
	if idx.Path == "" || idx.Path == MemoryPath {
		return ""
	}
	backend := idx.Backend
	if backend == "" {
		backend = config.IndexBackendChromem
	}
	return filepath.Join(idx.Path, backend+"-"+CatalogFilename)
}
