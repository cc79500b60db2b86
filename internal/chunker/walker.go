package chunker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
	"golang.org/x/text/encoding/charmap"
)

// WalkStats summarizes a repository walk.
type WalkStats struct {
	FilesChunked int
	FilesSkipped int
	Chunks       int
}

// Walker runs the Repository Filter over a checked-out tree and feeds eligible files to the chunker.
type Walker struct {
	filter *FileFilter
	opts   Options
	logger *slog.Logger
}

// NewWalker creates a walker. A nil logger falls back to slog.Default().
func NewWalker(filter *FileFilter, opts Options, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{filter: filter, opts: opts, logger: logger}
}

// Walk chunks every eligible file under root in lexical path order.
// Per-file failures are logged and skipped. Only context cancellation or an
// unreadable root aborts the walk.
func (w *Walker) Walk(ctx context.Context, root string) ([]domain.CodeChunk, WalkStats, error) {
	var (
		chunks []domain.CodeChunk
		stats  WalkStats
	)

	if _, err := os.Stat(root); err != nil {
		return nil, stats, fmt.Errorf("failed to access repository root: %w", err)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if walkErr != nil {
			w.logger.Warn("Skipping unreadable path", "path", relPath, "error", walkErr)
			if d != nil && d.IsDir() && relPath != "." {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if relPath != "." && w.filter.ShouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fileChunks, err := w.chunkFile(path, relPath, d)
		if err != nil {
			stats.FilesSkipped++
			if errors.Is(err, domain.ErrFileSkipped) {
				w.logger.Debug("File skipped", "path", relPath, "reason", err)
			} else {
				w.logger.Warn("Failed to process file, skipping", "path", relPath, "error", err)
			}
			return nil
		}

		stats.FilesChunked++
		stats.Chunks += len(fileChunks)
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	return chunks, stats, nil
}

func (w *Walker) chunkFile(path, relPath string, d fs.DirEntry) ([]domain.CodeChunk, error) {
	info, err := d.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if err := w.filter.CheckFile(relPath, info.Size()); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if IsBinary(raw) {
		return nil, fmt.Errorf("%w: %s appears to be binary", domain.ErrFileSkipped, relPath)
	}

	content, err := DecodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", relPath, err)
	}

	return ChunkFile(relPath, content, w.opts)
}

// DecodeText decodes raw file bytes as UTF-8, falling back to ISO-8859-1.
func DecodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
