package index

import (
	"regexp"
	"slices"
	"strings"
)

// symbolPatterns capture declared identifiers per language tag. Group 1 is the identifier.
var symbolPatterns = map[string][]*regexp.Regexp{
	"go": {
		regexp.MustCompile(`func\s+(?:\([^)]*\)\s*)?(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s+(?:struct|interface)`),
		regexp.MustCompile(`const\s+(\w+)`),
		regexp.MustCompile(`var\s+(\w+)`),
	},
	"python": {
		regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
	},
	"java": {
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`interface\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`(?:public|protected|private|static|\s) +[\w\<\>\[\]]+\s+(\w+) *\(`), // Method
	},
	"javascript": {
		regexp.MustCompile(`function\s+(\w+)`),
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`interface\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s*=`),
		regexp.MustCompile(`const\s+(\w+)\s*=`),
		regexp.MustCompile(`let\s+(\w+)\s*=`),
		regexp.MustCompile(`var\s+(\w+)\s*=`),
	},
	"rust": {
		regexp.MustCompile(`fn\s+(\w+)`),
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`trait\s+(\w+)`),
		regexp.MustCompile(`mod\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)`),
	},
	"c": {
		regexp.MustCompile(`(?m)^\s*\w+\s+(\w+)\s*\(.*\)\s*\{`), // Function definition
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`#define\s+(\w+)`),
	},
	"cpp": {
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`struct\s+(\w+)`),
		regexp.MustCompile(`enum\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*\w+\s+(\w+)\s*\(.*\)\s*\{`), // Function definition (simplified)
	},
}

// ExtractSymbols returns the sorted, unique identifiers declared in content for a language tag.
// Languages without patterns yield nil.
func ExtractSymbols(language, content string) []string {
	patterns := symbolPatterns[strings.ToLower(language)]
	if len(patterns) == 0 || content == "" {
		return nil
	}

	unique := make(map[string]struct{})
	for _, re := range patterns {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			if len(match) < 2 {
				continue
			}
			symbol := strings.TrimSpace(match[1])
			if symbol != "" && len(symbol) < 100 {
				unique[symbol] = struct{}{}
			}
		}
	}

	if len(unique) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(unique))
	for s := range unique {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)
	return symbols
}
