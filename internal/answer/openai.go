package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sha1n/mcp-repo-ingest/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var _ Client = (*ChatClient)(nil)

const defaultTimeout = 60 * time.Second

// ChatClient calls an OpenAI-compatible chat completions endpoint through langchaingo.
type ChatClient struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
}

// NewChatClient creates a client from settings. BaseURL must include the API version prefix,
// e.g. https://api.openai.com/v1.
func NewChatClient(s config.LLMSettings) (*ChatClient, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []openai.Option{
		openai.WithModel(s.Model),
		openai.WithToken(s.APIKey),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimRight(s.BaseURL, "/"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &ChatClient{
		llm:         llm,
		model:       s.Model,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
	}, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends a system and user message and returns the first choice with usage accounting.
func (c *ChatClient) Complete(ctx context.Context, system, prompt string) (Completion, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, fmt.Errorf("llm request: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return Completion{}, errors.New("empty completion")
	}

	choice := resp.Choices[0]
	return Completion{
		Text:             choice.Content,
		PromptTokens:     generationInt(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: generationInt(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      generationInt(choice.GenerationInfo, "TotalTokens"),
	}, nil
}

// generationInt reads a token count from langchaingo generation info, which carries untyped numbers.
func generationInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
