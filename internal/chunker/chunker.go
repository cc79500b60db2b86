package chunker

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

const (
	// DefaultMaxChunkChars is the default window size in characters.
	DefaultMaxChunkChars = 1000

	// DefaultOverlapLines is the default number of lines repeated at the start of the next window.
	DefaultOverlapLines = 5
)

// Mode selects the chunking granularity.
type Mode string

const (
	// ModeWindow accumulates lines into windows bounded by a character budget.
	ModeWindow Mode = "window"

	// ModeFile emits exactly one segment spanning the whole file.
	ModeFile Mode = "file"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWindow, "":
		return ModeWindow, nil
	case ModeFile:
		return ModeFile, nil
	default:
		return "", fmt.Errorf("unknown chunk mode %q (expected window or file)", s)
	}
}

// Options configures how file content is segmented.
type Options struct {
	Mode          Mode
	MaxChunkChars int
	OverlapLines  int
}

// DefaultOptions returns window mode with the default budget and overlap.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeWindow,
		MaxChunkChars: DefaultMaxChunkChars,
		OverlapLines:  DefaultOverlapLines,
	}
}

// Segment is a line-addressed span of text. Lines are 1-indexed and inclusive.
type Segment struct {
	StartLine int
	EndLine   int
	Content   string
}

// Split segments content with a sliding line window.
//
// Lines are accumulated while the buffer stays within maxChunkChars characters
// (terminators included). When the next line would overflow a non-empty buffer,
// the buffer is emitted and the next one is seeded with its last overlapLines lines.
// A single line longer than maxChunkChars is emitted whole.
// Empty or whitespace-only content yields no segments.
func Split(content string, maxChunkChars, overlapLines int) []Segment {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if overlapLines < 0 {
		overlapLines = 0
	}

	lines := splitLines(content)
	var segments []Segment

	var buf []string
	size := 0
	start := 1

	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if len(buf) > 0 && size+n > maxChunkChars {
			segments = append(segments, Segment{
				StartLine: start,
				EndLine:   start + len(buf) - 1,
				Content:   strings.Join(buf, ""),
			})

			// Always leave at least one new line per segment.
			keep := min(overlapLines, len(buf)-1)
			buf = append([]string(nil), buf[len(buf)-keep:]...)
			start = i + 1 - keep
			size = 0
			for _, l := range buf {
				size += utf8.RuneCountInString(l)
			}
		}
		buf = append(buf, line)
		size += n
	}

	if len(buf) > 0 {
		segments = append(segments, Segment{
			StartLine: start,
			EndLine:   start + len(buf) - 1,
			Content:   strings.Join(buf, ""),
		})
	}

	return segments
}

// Whole returns a single segment spanning every line of content.
// Empty or whitespace-only content yields no segments.
func Whole(content string) []Segment {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return []Segment{{
		StartLine: 1,
		EndLine:   len(splitLines(content)),
		Content:   content,
	}}
}

// splitLines splits content after each "\n", keeping terminators.
// A trailing newline does not produce an extra empty line.
func splitLines(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ChunkFile segments one file and tags each segment with its path, language and identity.
// relPath must be relative to the repository root. Returns an error wrapping
// domain.ErrFileSkipped if the file's language is not supported.
func ChunkFile(relPath, content string, opts Options) ([]domain.CodeChunk, error) {
	relPath = filepath.ToSlash(relPath)

	lang, ok := LanguageFor(relPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no supported language", domain.ErrFileSkipped, relPath)
	}

	var segments []Segment
	if opts.Mode == ModeFile {
		segments = Whole(content)
	} else {
		maxChars := opts.MaxChunkChars
		if maxChars <= 0 {
			maxChars = DefaultMaxChunkChars
		}
		segments = Split(content, maxChars, opts.OverlapLines)
	}

	chunks := make([]domain.CodeChunk, 0, len(segments))
	for _, seg := range segments {
		chunks = append(chunks, domain.CodeChunk{
			ID:        domain.ChunkID(relPath, seg.StartLine, seg.EndLine),
			FilePath:  relPath,
			StartLine: seg.StartLine,
			EndLine:   seg.EndLine,
			Language:  lang,
			Content:   seg.Content,
		})
	}
	return chunks, nil
}
