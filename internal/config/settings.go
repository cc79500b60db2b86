package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Index backends
const (
	IndexBackendChromem = "chromem"
	IndexBackendBleve   = "bleve"
)

// Embedding providers
const (
	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOllama = "ollama"
	EmbeddingProviderOpenAI = "openai"
)

// Clone backends
const (
	CloneBackendCLI   = "cli"
	CloneBackendGoGit = "gogit"
)

// EnvPrefix is the prefix of every environment variable read by the server.
const EnvPrefix = "REPO_INGEST"

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IngestSettings configuration for the ingestion pipeline
type IngestSettings struct {
	BaseDir         string        `mapstructure:"base_dir"`
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	ChunkOverlap    int           `mapstructure:"chunk_overlap"` // in lines
	ChunkMode       string        `mapstructure:"chunk_mode"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxParallelJobs int           `mapstructure:"max_parallel_jobs"`
	CloneBackend    string        `mapstructure:"clone_backend"`
	CloneTimeout    time.Duration `mapstructure:"clone_timeout"`
	IndexTimeout    time.Duration `mapstructure:"index_timeout"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	ExcludePatterns []string      `mapstructure:"exclude_patterns"`
	AllowAnonymous  bool          `mapstructure:"allow_anonymous"`
	AllowLocal      bool          `mapstructure:"allow_local"`
	AllowedHosts    []string      `mapstructure:"allowed_hosts"`
	// Token is the fallback clone credential when a request carries none.
	Token string `mapstructure:"token"`
}

// IndexSettings configuration for the vector/lexical index
type IndexSettings struct {
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"` // empty means <base_dir>/index; "memory" keeps everything in memory
	Compress   bool   `mapstructure:"compress"`
	MaxResults int    `mapstructure:"max_results"`
}

// EmbeddingSettings configuration for the embedding function
type EmbeddingSettings struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Dimension int    `mapstructure:"dimension"`
}

// LLMSettings configuration for the answer generator
type LLMSettings struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	MaxContextTokens int           `mapstructure:"max_context_tokens"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Settings application settings
type Settings struct {
	Transport string            `mapstructure:"transport"`
	Host      string            `mapstructure:"host"`
	Port      int               `mapstructure:"port"`
	LogLevel  string            `mapstructure:"log_level"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Ingest    IngestSettings    `mapstructure:"ingest"`
	Index     IndexSettings     `mapstructure:"index"`
	Embedding EmbeddingSettings `mapstructure:"embedding"`
	LLM       LLMSettings       `mapstructure:"llm"`
}

// flagBindings maps settings keys to CLI flag names.
// Secrets (ingest.token, embedding.api_key, llm.api_key) are environment-only.
var flagBindings = map[string]string{
	"transport":                "transport",
	"host":                     "host",
	"port":                     "port",
	"log_level":                "log-level",
	"auth.type":                "auth-type",
	"auth.basic.username":      "auth-basic-username",
	"auth.basic.password":      "auth-basic-password",
	"auth.api_keys":            "auth-api-keys",
	"ingest.base_dir":          "ingest-base-dir",
	"ingest.max_file_size":     "ingest-max-file-size",
	"ingest.chunk_size":        "ingest-chunk-size",
	"ingest.chunk_overlap":     "ingest-chunk-overlap",
	"ingest.chunk_mode":        "ingest-chunk-mode",
	"ingest.batch_size":        "ingest-batch-size",
	"ingest.max_parallel_jobs": "ingest-max-parallel-jobs",
	"ingest.clone_backend":     "ingest-clone-backend",
	"ingest.clone_timeout":     "ingest-clone-timeout",
	"ingest.index_timeout":     "ingest-index-timeout",
	"ingest.lock_timeout":      "ingest-lock-timeout",
	"ingest.exclude_patterns":  "ingest-exclude-patterns",
	"ingest.allow_anonymous":   "ingest-allow-anonymous",
	"ingest.allow_local":       "ingest-allow-local",
	"ingest.allowed_hosts":     "ingest-allowed-hosts",
	"index.backend":            "index-backend",
	"index.path":               "index-path",
	"index.compress":           "index-compress",
	"index.max_results":        "index-max-results",
	"embedding.provider":       "embedding-provider",
	"embedding.model":          "embedding-model",
	"embedding.base_url":       "embedding-base-url",
	"embedding.dimension":      "embedding-dimension",
	"llm.base_url":             "llm-base-url",
	"llm.model":                "llm-model",
	"llm.max_context_tokens":   "llm-max-context-tokens",
	"llm.max_tokens":           "llm-max-tokens",
	"llm.temperature":          "llm-temperature",
	"llm.timeout":              "llm-timeout",
}

// envOnly lists keys that can be set from the environment but have no flag.
var envOnly = []string{"ingest.token", "embedding.api_key", "llm.api_key"}

// listEnvKeys are comma-separated lists when given through the environment.
var listEnvKeys = []string{"auth.api_keys", "ingest.exclude_patterns", "ingest.allowed_hosts"}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("auth.type", AuthTypeNone)

	// Ingest defaults
	v.SetDefault("ingest.base_dir", defaultBaseDir())
	v.SetDefault("ingest.max_file_size", int64(1024*1024)) // 1MiB
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 5)
	v.SetDefault("ingest.chunk_mode", "window")
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.max_parallel_jobs", 4)
	v.SetDefault("ingest.clone_backend", CloneBackendCLI)
	v.SetDefault("ingest.clone_timeout", 5*time.Minute)
	v.SetDefault("ingest.index_timeout", 10*time.Minute)
	v.SetDefault("ingest.lock_timeout", 30*time.Second)
	v.SetDefault("ingest.allow_anonymous", true)
	v.SetDefault("ingest.allow_local", false)
	v.SetDefault("ingest.allowed_hosts", []string{"github.com"})

	// Index defaults
	v.SetDefault("index.backend", IndexBackendChromem)
	v.SetDefault("index.path", "")
	v.SetDefault("index.compress", false)
	v.SetDefault("index.max_results", 20)

	// Embedding defaults
	v.SetDefault("embedding.provider", EmbeddingProviderHash)
	v.SetDefault("embedding.dimension", 256)

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.max_context_tokens", 4000)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 60*time.Second)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	for key := range flagBindings {
		_ = v.BindEnv(key, EnvName(key))
	}
	for _, key := range envOnly {
		_ = v.BindEnv(key, EnvName(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, flag := range flagBindings {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Comma-separated lists from the environment
	settings.Auth.APIKeys = splitListEnv("auth.api_keys", settings.Auth.APIKeys)
	settings.Ingest.ExcludePatterns = splitListEnv("ingest.exclude_patterns", settings.Ingest.ExcludePatterns)
	settings.Ingest.AllowedHosts = splitListEnv("ingest.allowed_hosts", settings.Ingest.AllowedHosts)

	// Expand home directory in paths
	settings.Ingest.BaseDir = expandHomeDir(settings.Ingest.BaseDir)
	settings.Index.Path = expandHomeDir(settings.Index.Path)
	if settings.Index.Path == "" && settings.Ingest.BaseDir != "" {
		settings.Index.Path = filepath.Join(settings.Ingest.BaseDir, "index")
	}

	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))
	settings.Index.Backend = strings.ToLower(strings.TrimSpace(settings.Index.Backend))
	settings.Embedding.Provider = strings.ToLower(strings.TrimSpace(settings.Embedding.Provider))
	settings.Ingest.ChunkMode = strings.ToLower(strings.TrimSpace(settings.Ingest.ChunkMode))
	settings.Ingest.CloneBackend = strings.ToLower(strings.TrimSpace(settings.Ingest.CloneBackend))

	return &settings, nil
}

// EnvName returns the environment variable bound to a settings key.
// Example: "ingest.chunk_size" -> "REPO_INGEST_INGEST_CHUNK_SIZE"
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitListEnv handles a list given through the environment as a comma-separated string,
// then trims entries and drops empty ones.
func splitListEnv(key string, values []string) []string {
	if raw := os.Getenv(EnvName(key)); raw != "" {
		if len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ",")) {
			values = strings.Split(raw, ",")
		}
	}
	for i := range values {
		values[i] = strings.TrimSpace(values[i])
	}
	return filterEmptyStrings(values)
}

// defaultBaseDir returns the default base directory for workspaces and indexes
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repo-ingest"
	}
	return filepath.Join(home, ".repo-ingest")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	switch s.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return errors.New("log-level must be one of debug, info, warn, error, got: " + s.LogLevel)
	}

	if err := validateAuthSettings(&s.Auth); err != nil {
		return err
	}
	if err := validateIngestSettings(&s.Ingest); err != nil {
		return err
	}
	if err := validateIndexSettings(&s.Index); err != nil {
		return err
	}
	if err := validateEmbeddingSettings(&s.Embedding, s.Index.Backend); err != nil {
		return err
	}
	return validateLLMSettings(&s.LLM)
}

func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKeys := len(a.APIKeys) > 0

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

// validateIngestSettings validates the ingestion pipeline configuration
func validateIngestSettings(g *IngestSettings) error {
	if g.BaseDir == "" {
		return errors.New("ingest-base-dir cannot be empty")
	}
	if g.MaxFileSize <= 0 {
		return errors.New("ingest-max-file-size must be positive")
	}
	if g.ChunkSize <= 0 {
		return errors.New("ingest-chunk-size must be positive")
	}
	if g.ChunkOverlap < 0 {
		return errors.New("ingest-chunk-overlap cannot be negative")
	}
	switch g.ChunkMode {
	case "window", "file":
		// valid
	default:
		return fmt.Errorf("ingest-chunk-mode must be 'window' or 'file', got: %s", g.ChunkMode)
	}
	if g.BatchSize <= 0 {
		return errors.New("ingest-batch-size must be positive")
	}
	if g.MaxParallelJobs <= 0 {
		return errors.New("ingest-max-parallel-jobs must be positive")
	}
	switch g.CloneBackend {
	case CloneBackendCLI, CloneBackendGoGit:
		// valid
	default:
		return fmt.Errorf("ingest-clone-backend must be '%s' or '%s', got: %s", CloneBackendCLI, CloneBackendGoGit, g.CloneBackend)
	}
	if g.CloneTimeout <= 0 {
		return errors.New("ingest-clone-timeout must be positive")
	}
	if g.IndexTimeout <= 0 {
		return errors.New("ingest-index-timeout must be positive")
	}
	if g.LockTimeout <= 0 {
		return errors.New("ingest-lock-timeout must be positive")
	}
	return nil
}

func validateIndexSettings(i *IndexSettings) error {
	switch i.Backend {
	case IndexBackendChromem, IndexBackendBleve:
		// valid
	default:
		return fmt.Errorf("index-backend must be '%s' or '%s', got: %s", IndexBackendChromem, IndexBackendBleve, i.Backend)
	}
	if i.MaxResults <= 0 {
		return errors.New("index-max-results must be positive")
	}
	return nil
}

func validateEmbeddingSettings(e *EmbeddingSettings, backend string) error {
	if backend != IndexBackendChromem {
		return nil // Lexical backends do not embed
	}
	switch e.Provider {
	case EmbeddingProviderHash:
		if e.Dimension <= 0 {
			return errors.New("embedding-dimension must be positive")
		}
	case EmbeddingProviderOllama:
		if e.Model == "" {
			return errors.New("embedding-provider 'ollama' requires embedding-model")
		}
	case EmbeddingProviderOpenAI:
		if e.Model == "" {
			return errors.New("embedding-provider 'openai' requires embedding-model")
		}
		if e.BaseURL == "" {
			return errors.New("embedding-provider 'openai' requires embedding-base-url")
		}
	default:
		return errors.New("unknown embedding-provider: " + e.Provider)
	}
	return nil
}

func validateLLMSettings(l *LLMSettings) error {
	if l.MaxContextTokens <= 0 {
		return errors.New("llm-max-context-tokens must be positive")
	}
	if l.MaxTokens <= 0 {
		return errors.New("llm-max-tokens must be positive")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return errors.New("llm-temperature must be between 0 and 2")
	}
	if l.Timeout <= 0 {
		return errors.New("llm-timeout must be positive")
	}
	if l.APIKey != "" && l.BaseURL == "" {
		return errors.New("llm-base-url is required when an LLM API key is set")
	}
	return nil
}
