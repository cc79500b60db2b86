package chunker

import (
	"path/filepath"
	"strings"
)

// SupportedLanguages maps a language tag to the file extensions that resolve to it.
// Files whose extension is not listed here are never chunked.
var SupportedLanguages = map[string][]string{
	"python":     {".py", ".pyx", ".pyi", ".pyw"},
	"javascript": {".js", ".jsx", ".ts", ".tsx"},
	"java":       {".java"},
	"c":          {".c", ".h"},
	"cpp":        {".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
	"csharp":     {".cs"},
	"go":         {".go"},
	"ruby":       {".rb"},
	"php":        {".php"},
	"swift":      {".swift"},
	"rust":       {".rs"},
	"kotlin":     {".kt", ".kts"},
	"scala":      {".scala"},
	"html":       {".html", ".htm"},
	"css":        {".css", ".scss", ".sass", ".less"},
	"json":       {".json"},
	"yaml":       {".yaml", ".yml"},
	"xml":        {".xml"},
	"markdown":   {".md", ".markdown"},
	"shell":      {".sh", ".bash", ".zsh"},
	"sql":        {".sql"},
}

var extToLanguage = buildExtensionIndex(SupportedLanguages)

func buildExtensionIndex(langs map[string][]string) map[string]string {
	index := make(map[string]string)
	for lang, exts := range langs {
		for _, ext := range exts {
			index[ext] = lang
		}
	}
	return index
}

// LanguageFor resolves the language tag of a file from its extension.
// Returns false if the extension is not supported.
func LanguageFor(path string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}
