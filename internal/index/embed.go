package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
	"github.com/sha1n/mcp-repo-ingest/internal/config"
)

// DefaultHashDimension is the vector size of the hash embedding when none is configured.
const DefaultHashDimension = 256

// NewHashEmbedding returns a deterministic, offline embedding function.
// Tokens (identifier runs, lower-cased) and their camelCase/snake_case parts are hashed
// into dim buckets with a signed FNV-1a hash, and the result is L2-normalized.
func NewHashEmbedding(dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return func(_ context.Context, text string) ([]float32, error) {
		return hashEmbed(text, dim), nil
	}
}

func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// chromem rejects zero vectors
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// tokenize splits text into lower-cased identifier tokens plus their word parts.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		parts := splitIdentifier(f)
		tokens = append(tokens, strings.ToLower(f))
		if len(parts) > 1 {
			for _, p := range parts {
				tokens = append(tokens, strings.ToLower(p))
			}
		}
	}
	return tokens
}

// splitIdentifier splits snake_case and camelCase identifiers into words.
func splitIdentifier(s string) []string {
	var parts []string
	for _, chunk := range strings.Split(s, "_") {
		if chunk == "" {
			continue
		}
		runes := []rune(chunk)
		start := 0
		for i := 1; i < len(runes); i++ {
			if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

// NewEmbeddingFunc builds the embedding function selected by settings.
func NewEmbeddingFunc(s config.EmbeddingSettings) (chromem.EmbeddingFunc, error) {
	switch s.Provider {
	case config.EmbeddingProviderHash, "":
		return NewHashEmbedding(s.Dimension), nil
	case config.EmbeddingProviderOllama:
		return chromem.NewEmbeddingFuncOllama(s.Model, s.BaseURL), nil
	case config.EmbeddingProviderOpenAI:
		return chromem.NewEmbeddingFuncOpenAICompat(s.BaseURL, s.APIKey, s.Model, nil), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: hash, ollama, openai)", s.Provider)
	}
}
