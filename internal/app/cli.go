package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn, or error")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	// Ingestion
	flags.String("ingest-base-dir", "", "Directory holding cloned workspaces")
	flags.Int64("ingest-max-file-size", 0, "Files larger than this many bytes are skipped")
	flags.Int("ingest-chunk-size", 0, "Maximum characters per chunk")
	flags.Int("ingest-chunk-overlap", 0, "Lines shared by consecutive chunks")
	flags.String("ingest-chunk-mode", "", "Chunking mode: window or file")
	flags.Int("ingest-batch-size", 0, "Chunks written to the index per batch")
	flags.Int("ingest-max-parallel-jobs", 0, "Maximum ingestion jobs running at once")
	flags.String("ingest-clone-backend", "", "Clone backend: cli or gogit")
	flags.Duration("ingest-clone-timeout", 0, "Clone timeout")
	flags.Duration("ingest-index-timeout", 0, "Indexing timeout")
	flags.Duration("ingest-lock-timeout", 0, "Workspace lock timeout")
	flags.StringSlice("ingest-exclude-patterns", nil, "Extra file patterns to skip (comma-separated)")
	flags.Bool("ingest-allow-anonymous", false, "Allow https clones without a token")
	flags.Bool("ingest-allow-local", false, "Allow file:// repositories")
	flags.StringSlice("ingest-allowed-hosts", nil, "Hosts repositories may be cloned from (comma-separated)")

	// Index
	flags.String("index-backend", "", "Index backend: chromem or bleve")
	flags.String("index-path", "", "Index directory, or memory")
	flags.Bool("index-compress", false, "Compress persisted chromem collections")
	flags.Int("index-max-results", 0, "Upper bound for top_n")

	// Embedding
	flags.String("embedding-provider", "", "Embedding provider: hash, ollama, or openai")
	flags.String("embedding-model", "", "Embedding model")
	flags.String("embedding-base-url", "", "Embedding API base URL")
	flags.Int("embedding-dimension", 0, "Hash embedding dimension")

	// Answer generation
	flags.String("llm-base-url", "", "Chat completions API base URL")
	flags.String("llm-model", "", "Chat model, or offline to disable generation")
	flags.Int("llm-max-context-tokens", 0, "Token budget for retrieved snippets")
	flags.Int("llm-max-tokens", 0, "Maximum completion tokens")
	flags.Float64("llm-temperature", 0, "Sampling temperature")
	flags.Duration("llm-timeout", 0, "Chat completion timeout")
}
