package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// DefaultMaxFileSize is the size cap above which files are skipped (1 MiB).
const DefaultMaxFileSize int64 = 1024 * 1024

// DefaultIgnoredDirs are directory names that are never descended into.
var DefaultIgnoredDirs = []string{
	".git", "node_modules", "venv", "env", ".env", "__pycache__",
	"dist", "build", "target", "out", "bin", "obj", ".idea", ".vscode",
	"coverage", ".nyc_output", ".pytest_cache", ".mypy_cache", ".tox",
	"vendor", "bower_components", "jspm_packages", "packages",
}

// DefaultIgnoredFiles are exact file names that are never chunked.
var DefaultIgnoredFiles = []string{
	"LICENSE", "LICENCE", "NOTICE", "PATENTS", "AUTHORS", "CONTRIBUTORS",
	"COPYING", "INSTALL", "CHANGELOG", "CHANGES", "NEWS", "HISTORY",
	".gitignore", ".gitattributes", ".gitmodules", ".editorconfig",
	".travis.yml", ".gitlab-ci.yml", "appveyor.yml", "circle.yml",
	"Dockerfile", "docker-compose.yml", "Makefile", "CMakeLists.txt",
	"package-lock.json", "yarn.lock", "Pipfile.lock", "poetry.lock",
	".DS_Store", "Thumbs.db",
}

// DefaultIgnoredExtensions is the extension block-list (images, media, archives, binaries, documents, fonts).
var DefaultIgnoredExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".ico", ".webp",
	".mp3", ".wav", ".ogg", ".flac", ".aac",
	".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv",
	".zip", ".rar", ".7z", ".tar", ".gz", ".bz2",
	".exe", ".dll", ".so", ".dylib", ".class", ".pyc", ".pyd",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".ttf", ".otf", ".woff", ".woff2", ".eot",
}

// DefaultExcludePatterns are glob patterns for generated files that carry supported extensions.
var DefaultExcludePatterns = []string{
	"*.min.js", "*.min.css", "*.map", "*.pb.go", "*_pb2.py",
}

// FileFilter decides which directories and files are eligible for chunking.
type FileFilter struct {
	ignoredDirs  map[string]struct{}
	ignoredFiles map[string]struct{}
	ignoredExts  map[string]struct{}
	patterns     []string
	maxFileSize  int64
}

// NewFileFilter creates a FileFilter with the default ignore lists.
func NewFileFilter(maxFileSize int64) *FileFilter {
	return NewFileFilterWithPatterns(nil, maxFileSize)
}

// NewFileFilterWithPatterns creates a FileFilter with the default ignore lists
// and additional exclusion patterns.
func NewFileFilterWithPatterns(extraPatterns []string, maxFileSize int64) *FileFilter {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	patterns := make([]string, 0, len(DefaultExcludePatterns)+len(extraPatterns))
	patterns = append(patterns, DefaultExcludePatterns...)
	patterns = append(patterns, extraPatterns...)

	return &FileFilter{
		ignoredDirs:  toSet(DefaultIgnoredDirs),
		ignoredFiles: toSet(DefaultIgnoredFiles),
		ignoredExts:  toSet(DefaultIgnoredExtensions),
		patterns:     patterns,
		maxFileSize:  maxFileSize,
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// MaxFileSize returns the size cap in bytes.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

// ShouldSkipDir reports whether a directory with the given base name is ignored.
func (f *FileFilter) ShouldSkipDir(name string) bool {
	_, ok := f.ignoredDirs[name]
	return ok
}

// CheckFile returns nil if the file is eligible for chunking, or an error wrapping
// domain.ErrFileSkipped that names the reason.
// The path should be relative to the repository root.
func (f *FileFilter) CheckFile(relPath string, size int64) error {
	relPath = filepath.ToSlash(relPath)
	name := filepath.Base(relPath)

	if size > f.maxFileSize {
		return fmt.Errorf("%w: %s exceeds max size (%d > %d bytes)", domain.ErrFileSkipped, relPath, size, f.maxFileSize)
	}
	if _, ok := f.ignoredFiles[name]; ok {
		return fmt.Errorf("%w: %s is an ignored file", domain.ErrFileSkipped, relPath)
	}
	if _, ok := f.ignoredExts[strings.ToLower(filepath.Ext(name))]; ok {
		return fmt.Errorf("%w: %s has a blocked extension", domain.ErrFileSkipped, relPath)
	}
	for _, pattern := range f.patterns {
		if matchPattern(pattern, relPath) {
			return fmt.Errorf("%w: %s matches exclude pattern %q", domain.ErrFileSkipped, relPath, pattern)
		}
	}
	if _, ok := LanguageFor(relPath); !ok {
		return fmt.Errorf("%w: %s has no supported language", domain.ErrFileSkipped, relPath)
	}
	return nil
}

// matchPattern matches a file path against a glob pattern.
// Supports ** for directory matching and * for filename matching.
func matchPattern(pattern, path string) bool {
	if strings.HasPrefix(pattern, "**/") {
		rest := pattern[3:]
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchSimplePattern(rest, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		dir := pattern[:len(pattern)-3]
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
		parts := strings.Split(path, "/")
		for i, part := range parts {
			if part == dir && i < len(parts)-1 {
				return true
			}
		}
		return false
	}

	return matchSimplePattern(pattern, path)
}

// matchSimplePattern matches a simple glob pattern (with * but not **).
func matchSimplePattern(pattern, name string) bool {
	if strings.HasPrefix(pattern, "*") && !strings.ContainsAny(pattern[1:], "*?[") {
		suffix := pattern[1:]
		return strings.HasSuffix(strings.ToLower(filepath.Base(name)), strings.ToLower(suffix))
	}

	if pattern == name {
		return true
	}

	if matched, _ := filepath.Match(pattern, name); matched {
		return true
	}

	matched, _ := filepath.Match(pattern, filepath.Base(name))
	return matched
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
