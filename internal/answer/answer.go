// Package answer generates natural-language answers about a repository from ranked code snippets.
package answer

import (
	"context"
	"log/slog"

	"github.com/sha1n/mcp-repo-ingest/internal/config"
	"github.com/sha1n/mcp-repo-ingest/internal/index"
)

const (
	// ModelNone marks answers produced without consulting any model.
	ModelNone = "none"

	// ModelOffline marks answers produced while no LLM is configured.
	ModelOffline = "offline"

	noSnippetsAnswer = "No relevant code was found in the repository for this question. Make sure the repository has been ingested for this session."
	offlineAnswer    = "No LLM is configured, so no answer was generated. Set REPO_INGEST_LLM_API_KEY to enable answers; the matching snippets are included below."
)

// Completion is a model reply with token accounting.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a chat model.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (Completion, error)
	Model() string
}

// Answer is the outcome of a question. Model failures are reported in Error, not returned.
type Answer struct {
	Answer           string `json:"answer"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Error            string `json:"error,omitempty"`
}

// Generator builds prompts from hits and asks the configured client.
type Generator struct {
	client           Client
	maxContextTokens int
	logger           *slog.Logger
}

// NewGenerator creates a generator. A nil client answers offline.
func NewGenerator(client Client, maxContextTokens int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, maxContextTokens: maxContextTokens, logger: logger}
}

// NewGeneratorFromSettings wires a ChatClient when an API key is configured.
func NewGeneratorFromSettings(s config.LLMSettings, logger *slog.Logger) *Generator {
	if s.APIKey == "" {
		if logger != nil {
			logger.Warn("No LLM API key configured, questions will be answered offline")
		}
		return NewGenerator(nil, s.MaxContextTokens, logger)
	}

	client, err := NewChatClient(s)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to create LLM client, questions will be answered offline", "error", err)
		}
		return NewGenerator(nil, s.MaxContextTokens, logger)
	}
	return NewGenerator(client, s.MaxContextTokens, logger)
}

// Answer answers question from hits, which must be ordered by relevance.
func (g *Generator) Answer(ctx context.Context, question string, hits []index.Hit) Answer {
	if len(hits) == 0 {
		return Answer{Answer: noSnippetsAnswer, Model: ModelNone}
	}

	prompt := BuildPrompt(question, hits, g.maxContextTokens)
	promptTokens := EstimateTokens(prompt)

	if g.client == nil {
		return Answer{
			Answer:       offlineAnswer,
			Model:        ModelOffline,
			PromptTokens: promptTokens,
			TotalTokens:  promptTokens,
		}
	}

	comp, err := g.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		g.logger.Error("LLM request failed", "model", g.client.Model(), "error", err)
		return Answer{
			Answer:       "Failed to generate an answer: " + err.Error(),
			Model:        g.client.Model(),
			PromptTokens: promptTokens,
			TotalTokens:  promptTokens,
			Error:        err.Error(),
		}
	}

	return Answer{
		Answer:           comp.Text,
		Model:            g.client.Model(),
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
		TotalTokens:      comp.TotalTokens,
	}
}
