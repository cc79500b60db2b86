package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// numberedLines returns n lines of exactly 8 characters each ("line 01\n").
func numberedLines(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %02d\n", i)
	}
	return sb.String()
}

func TestSplit_SmallFileIsOneSegment(t *testing.T) {
	content := "a := 1\nb := 2\nc := 3\n"

	segments := Split(content, 10_000, 2)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if segments[0].StartLine != 1 || segments[0].EndLine != 3 {
		t.Errorf("Segment range = %d-%d, want 1-3", segments[0].StartLine, segments[0].EndLine)
	}
	if segments[0].Content != content {
		t.Errorf("Segment content = %q, want %q", segments[0].Content, content)
	}
}

func TestSplit_ExactBudgetIsOneSegment(t *testing.T) {
	content := numberedLines(5) // 40 characters

	segments := Split(content, 40, 2)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment for content equal to the budget, got %d", len(segments))
	}
	if segments[0].EndLine != 5 {
		t.Errorf("EndLine = %d, want 5", segments[0].EndLine)
	}
}

func TestSplit_NoTrailingNewline(t *testing.T) {
	segments := Split("first\nsecond", 1000, 0)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if segments[0].EndLine != 2 {
		t.Errorf("EndLine = %d, want 2", segments[0].EndLine)
	}
}

func TestSplit_TwoSegmentsWithOverlap(t *testing.T) {
	segments := Split(numberedLines(7), 40, 2)

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	first, second := segments[0], segments[1]
	if first.StartLine != 1 || first.EndLine != 5 {
		t.Errorf("First segment = %d-%d, want 1-5", first.StartLine, first.EndLine)
	}
	if second.StartLine != first.EndLine+1-2 {
		t.Errorf("Second segment starts at %d, want %d", second.StartLine, first.EndLine+1-2)
	}
	if second.EndLine != 7 {
		t.Errorf("Second segment ends at %d, want 7", second.EndLine)
	}
	if !strings.HasPrefix(second.Content, "line 04\nline 05\n") {
		t.Errorf("Second segment should start with the overlapped lines, got %q", second.Content)
	}
}

func TestSplit_BoundaryProperty(t *testing.T) {
	tests := []struct {
		lines    int
		maxChars int
		overlap  int
	}{
		{10, 40, 2},
		{50, 64, 3},
		{100, 100, 0},
		{33, 24, 1},
		{200, 1000, 5},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("lines=%d,max=%d,overlap=%d", tt.lines, tt.maxChars, tt.overlap)
		t.Run(name, func(t *testing.T) {
			segments := Split(numberedLines(tt.lines), tt.maxChars, tt.overlap)
			if len(segments) < 2 {
				t.Fatalf("Expected multiple segments, got %d", len(segments))
			}

			if segments[0].StartLine != 1 {
				t.Errorf("First segment starts at %d, want 1", segments[0].StartLine)
			}
			if last := segments[len(segments)-1]; last.EndLine != tt.lines {
				t.Errorf("Last segment ends at %d, want %d", last.EndLine, tt.lines)
			}

			for i := 1; i < len(segments); i++ {
				prev, cur := segments[i-1], segments[i]
				if cur.StartLine != prev.EndLine-tt.overlap+1 {
					t.Errorf("Segment %d starts at %d, want %d", i, cur.StartLine, prev.EndLine-tt.overlap+1)
				}
				if cur.StartLine < prev.StartLine {
					t.Errorf("Segment %d start %d regresses below %d", i, cur.StartLine, prev.StartLine)
				}
				if cur.StartLine > cur.EndLine {
					t.Errorf("Segment %d has inverted range %d-%d", i, cur.StartLine, cur.EndLine)
				}
			}
		})
	}
}

func TestSplit_SegmentsStayWithinBudget(t *testing.T) {
	segments := Split(numberedLines(40), 64, 2)

	for i, seg := range segments {
		if n := len([]rune(seg.Content)); n > 64 {
			t.Errorf("Segment %d has %d characters, exceeds budget of 64", i, n)
		}
	}
}

func TestSplit_OversizedLineIsNotSplit(t *testing.T) {
	long := strings.Repeat("x", 250)
	content := "short\n" + long + "\nshort again\n"

	segments := Split(content, 100, 1)

	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d: %+v", len(segments), segments)
	}
	found := false
	for _, seg := range segments {
		if strings.Contains(seg.Content, long) {
			found = true
			if seg.StartLine != 2 || seg.EndLine != 2 {
				t.Errorf("Oversized line segment = %d-%d, want 2-2", seg.StartLine, seg.EndLine)
			}
		}
	}
	if !found {
		t.Error("Oversized line should be emitted whole")
	}
}

func TestSplit_OverlapLargerThanBufferStillProgresses(t *testing.T) {
	segments := Split(numberedLines(6), 8, 10)

	if len(segments) != 6 {
		t.Fatalf("Expected one segment per line, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.StartLine != i+1 || seg.EndLine != i+1 {
			t.Errorf("Segment %d = %d-%d, want %d-%d", i, seg.StartLine, seg.EndLine, i+1, i+1)
		}
	}
}

func TestSplit_CountsCharactersNotBytes(t *testing.T) {
	// 4 lines of 5 characters but 7 bytes each
	content := strings.Repeat("héé!\n", 4)

	segments := Split(content, 20, 0)

	if len(segments) != 1 {
		t.Errorf("Expected 1 segment when counting runes, got %d", len(segments))
	}
}

func TestSplit_EmptyAndWhitespace(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\n\n", " \t\n  \n"} {
		if segments := Split(content, 100, 2); len(segments) != 0 {
			t.Errorf("Split(%q) returned %d segments, want 0", content, len(segments))
		}
		if segments := Whole(content); len(segments) != 0 {
			t.Errorf("Whole(%q) returned %d segments, want 0", content, len(segments))
		}
	}
}

func TestWhole(t *testing.T) {
	content := numberedLines(300)

	segments := Whole(content)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	if segments[0].StartLine != 1 || segments[0].EndLine != 300 {
		t.Errorf("Segment range = %d-%d, want 1-300", segments[0].StartLine, segments[0].EndLine)
	}
	if segments[0].Content != content {
		t.Error("Whole segment should hold the full content")
	}
}

func TestChunkFile_WindowMode(t *testing.T) {
	opts := Options{Mode: ModeWindow, MaxChunkChars: 40, OverlapLines: 2}

	chunks, err := ChunkFile("src/app/main.py", numberedLines(10), opts)
	if err != nil {
		t.Fatalf("ChunkFile failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	wantIDs := []string{"src/app/main.py:1-5", "src/app/main.py:4-8", "src/app/main.py:7-10"}
	seen := make(map[string]bool)
	for i, c := range chunks {
		if c.ID != wantIDs[i] {
			t.Errorf("chunk[%d].ID = %q, want %q", i, c.ID, wantIDs[i])
		}
		if c.Language != "python" {
			t.Errorf("chunk[%d].Language = %q, want 'python'", i, c.Language)
		}
		if c.FilePath != "src/app/main.py" {
			t.Errorf("chunk[%d].FilePath = %q", i, c.FilePath)
		}
		if seen[c.ID] {
			t.Errorf("Duplicate chunk ID %q", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestChunkFile_FileMode(t *testing.T) {
	opts := Options{Mode: ModeFile, MaxChunkChars: 10, OverlapLines: 2}

	chunks, err := ChunkFile("lib/util.go", numberedLines(20), opts)
	if err != nil {
		t.Fatalf("ChunkFile failed: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk in file mode, got %d", len(chunks))
	}
	if chunks[0].ID != "lib/util.go:1-20" {
		t.Errorf("ID = %q, want 'lib/util.go:1-20'", chunks[0].ID)
	}
	if chunks[0].Language != "go" {
		t.Errorf("Language = %q, want 'go'", chunks[0].Language)
	}
}

func TestChunkFile_UnsupportedLanguage(t *testing.T) {
	_, err := ChunkFile("notes.txt", "hello\n", DefaultOptions())
	if !errors.Is(err, domain.ErrFileSkipped) {
		t.Errorf("Expected ErrFileSkipped, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"window", ModeWindow, false},
		{"", ModeWindow, false},
		{"FILE", ModeFile, false},
		{" file ", ModeFile, false},
		{"ast", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"main.go", "go", true},
		{"App.JAVA", "java", true},
		{"web/index.tsx", "javascript", true},
		{"include/lib.hpp", "cpp", true},
		{"README.md", "markdown", true},
		{"data.bin", "", false},
		{"Makefile", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := LanguageFor(tt.path)
			if got != tt.want || ok != tt.ok {
				t.Errorf("LanguageFor(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}
