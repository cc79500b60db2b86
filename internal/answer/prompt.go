package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sha1n/mcp-repo-ingest/internal/index"
)

const (
	systemPrompt = "You are an expert code interpreter who analyzes and explains source code."

	promptTemplate = `You are an expert code interpreter who analyzes and explains source code. Answer the user's question using the code snippets below.

User question: "%s"

Possibly relevant code snippets:

%s

Answer the question based on the snippets above. If they do not contain enough information, say so explicitly and offer whatever insight the available code supports.
Keep the answer clear, accurate and focused on the question.
`

	// minTruncatedTokens is the smallest budget worth spending on a partial snippet
	minTruncatedTokens = 100

	charsPerToken = 4
)

// EstimateTokens approximates the token count of text at four characters per token.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// truncateTokens cuts text to roughly maxTokens tokens.
func truncateTokens(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	return string(runes[:min(len(runes), maxTokens*charsPerToken)])
}

// formatSnippet renders one hit as a numbered, fenced snippet.
func formatSnippet(i int, h index.Hit) string {
	path := h.Metadata.FilePath
	if path == "" {
		path = "unknown file"
	}
	start := h.Metadata.StartLine
	if start == 0 {
		start = 1
	}
	lang := h.Metadata.Language
	if lang == "" {
		lang = "unknown"
	}
	return fmt.Sprintf("Snippet %d (from %s L%d, language: %s):\n```\n%s\n```\n", i, path, start, lang, h.Content)
}

// BuildPrompt renders the question and snippets into a user prompt of at most maxTokens estimated tokens.
// Snippets are kept in rank order; when the budget runs out the next snippet is truncated if
// more than 100 tokens remain, and the rest are dropped.
func BuildPrompt(question string, hits []index.Hit, maxTokens int) string {
	formatted := make([]string, len(hits))
	for i, h := range hits {
		formatted[i] = formatSnippet(i+1, h)
	}

	prompt := fmt.Sprintf(promptTemplate, question, strings.Join(formatted, "\n"))
	if EstimateTokens(prompt) <= maxTokens {
		return prompt
	}

	remaining := maxTokens - EstimateTokens(fmt.Sprintf(promptTemplate, question, ""))
	kept := make([]string, 0, len(formatted))
	used := 0
	for _, snippet := range formatted {
		n := EstimateTokens(snippet)
		if used+n <= remaining {
			kept = append(kept, snippet)
			used += n
			continue
		}
		if available := remaining - used; available > minTruncatedTokens {
			kept = append(kept, truncateTokens(snippet, available))
		}
		break
	}

	return fmt.Sprintf(promptTemplate, question, strings.Join(kept, "\n"))
}
