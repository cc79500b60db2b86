package domain

import "fmt"

// CodeChunk is a bounded, line-addressed span of a source file.
// It is produced by the chunker for one job and consumed by the indexing adapter.
type CodeChunk struct {
	// ID is derived from the file path and line range.
	// Format: "path/to/file.go:10-42"
	ID string `json:"chunk_id"`

	// FilePath is the file path relative to the repository root, using forward slashes.
	// Example: "src/main/java/App.java"
	FilePath string `json:"file_path"`

	// StartLine and EndLine are 1-indexed and inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Language is resolved from the file extension.
	// Example: "go", "python", "javascript"
	Language string `json:"language"`

	// Content is the literal text span.
	Content string `json:"content"`
}

// ChunkMeta is the content-free view of a CodeChunk retained on a job record.
type ChunkMeta struct {
	ID            string `json:"chunk_id"`
	FilePath      string `json:"file_path"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Language      string `json:"language"`
	ContentLength int    `json:"content_length"`
}

// ChunkID builds the identity string for a file path and inclusive line range.
func ChunkID(filePath string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d-%d", filePath, startLine, endLine)
}

// Meta returns the chunk coordinates without its content.
// ContentLength counts characters, not bytes.
func (c CodeChunk) Meta() ChunkMeta {
	return ChunkMeta{
		ID:            c.ID,
		FilePath:      c.FilePath,
		StartLine:     c.StartLine,
		EndLine:       c.EndLine,
		Language:      c.Language,
		ContentLength: len([]rune(c.Content)),
	}
}

// Metadata keys stored with every indexed chunk. They double as Bleve field names.
const (
	CodeFieldID        = "id"
	CodeFieldFilePath  = "file_path"
	CodeFieldStartLine = "start_line"
	CodeFieldEndLine   = "end_line"
	CodeFieldLanguage  = "language"
	CodeFieldJobID     = "job_id"
	CodeFieldContent   = "content"
	CodeFieldSymbols   = "symbols"
)
