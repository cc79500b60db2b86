package config

import (
	"context"
	"log/slog"
)

const masked = "****"

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}
	logger.InfoContext(ctx, "Config: log_level", "value", s.LogLevel)

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", masked)
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: ingest", "value", IngestSettingsLogValue(s.Ingest))
	logger.InfoContext(ctx, "Config: index", "value", IndexSettingsLogValue(s.Index))
	if s.Index.Backend == IndexBackendChromem {
		logger.InfoContext(ctx, "Config: embedding", "value", EmbeddingSettingsLogValue(s.Embedding))
	}
	logger.InfoContext(ctx, "Config: llm", "value", LLMSettingsLogValue(s.LLM))
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = masked
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", masked),
	)
}

// IngestSettingsLogValue returns a slog.Value for IngestSettings with the token masked
func IngestSettingsLogValue(s IngestSettings) slog.Value {
	return slog.GroupValue(
		slog.String("base_dir", s.BaseDir),
		slog.Int64("max_file_size", s.MaxFileSize),
		slog.Int("chunk_size", s.ChunkSize),
		slog.Int("chunk_overlap", s.ChunkOverlap),
		slog.String("chunk_mode", s.ChunkMode),
		slog.Int("batch_size", s.BatchSize),
		slog.Int("max_parallel_jobs", s.MaxParallelJobs),
		slog.String("clone_backend", s.CloneBackend),
		slog.Duration("clone_timeout", s.CloneTimeout),
		slog.Duration("index_timeout", s.IndexTimeout),
		slog.Any("allowed_hosts", s.AllowedHosts),
		slog.Bool("allow_anonymous", s.AllowAnonymous),
		slog.Bool("allow_local", s.AllowLocal),
		slog.String("token", maskIfSet(s.Token)),
	)
}

// IndexSettingsLogValue returns a slog.Value for IndexSettings
func IndexSettingsLogValue(s IndexSettings) slog.Value {
	return slog.GroupValue(
		slog.String("backend", s.Backend),
		slog.String("path", s.Path),
		slog.Bool("compress", s.Compress),
		slog.Int("max_results", s.MaxResults),
	)
}

// EmbeddingSettingsLogValue returns a slog.Value for EmbeddingSettings with masked data
func EmbeddingSettingsLogValue(s EmbeddingSettings) slog.Value {
	return slog.GroupValue(
		slog.String("provider", s.Provider),
		slog.String("model", s.Model),
		slog.String("base_url", s.BaseURL),
		slog.Int("dimension", s.Dimension),
		slog.String("api_key", maskIfSet(s.APIKey)),
	)
}

// LLMSettingsLogValue returns a slog.Value for LLMSettings with masked data
func LLMSettingsLogValue(s LLMSettings) slog.Value {
	return slog.GroupValue(
		slog.String("base_url", s.BaseURL),
		slog.String("model", s.Model),
		slog.Int("max_context_tokens", s.MaxContextTokens),
		slog.Int("max_tokens", s.MaxTokens),
		slog.Float64("temperature", s.Temperature),
		slog.String("api_key", maskIfSet(s.APIKey)),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.String("log_level", s.LogLevel),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Any("ingest", IngestSettingsLogValue(s.Ingest)),
		slog.Any("index", IndexSettingsLogValue(s.Index)),
		slog.Any("embedding", EmbeddingSettingsLogValue(s.Embedding)),
		slog.Any("llm", LLMSettingsLogValue(s.LLM)),
	)
}

// ParseLogLevel maps a configured level name to a slog.Level. Unknown names map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func maskIfSet(s string) string {
	if s == "" {
		return ""
	}
	return masked
}
