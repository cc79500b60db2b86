package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLog(t *testing.T) {
	// Just verify it doesn't panic
	Log(validSettings())
}

func TestLogWithLogger_StdioTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWithLogger(validSettings(), logger)

	output := buf.String()
	if !strings.Contains(output, "transport") {
		t.Error("Expected 'transport' in log output")
	}
	// stdio transport should not log host/port
	if strings.Contains(output, "Config: host") || strings.Contains(output, "Config: port") {
		t.Error("Expected no host/port entries in log output for stdio transport")
	}
}

func TestLogWithLogger_SSETransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := validSettings()
	s.Transport = "sse"
	s.Host = "localhost"
	s.Port = 8080

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "Config: host") {
		t.Error("Expected 'host' in log output for SSE transport")
	}
	if !strings.Contains(output, "Config: port") {
		t.Error("Expected 'port' in log output for SSE transport")
	}
}

func TestLogWithLogger_BasicAuth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := validSettings()
	s.Auth = AuthSettings{
		Type:  AuthTypeBasic,
		Basic: BasicAuthSettings{Username: "admin", Password: "secret"},
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "admin") {
		t.Error("Expected username in log output")
	}
	if !strings.Contains(output, "****") {
		t.Error("Expected masked password in log output")
	}
	if strings.Contains(output, "secret") {
		t.Error("Password should be masked, not shown in plain text")
	}
}

func TestLogWithLogger_APIKeyAuth(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := validSettings()
	s.Auth = AuthSettings{Type: AuthTypeAPIKey, APIKeys: []string{"key1", "key2", "key3"}}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "count=3") {
		t.Errorf("Expected 'count=3' in log output, got: %s", output)
	}
}

func TestLogWithLogger_MasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := validSettings()
	s.Ingest.Token = "ghp_topsecret"
	s.Embedding.APIKey = "emb-topsecret"
	s.LLM.APIKey = "sk-topsecret"

	LogWithLogger(s, logger)

	output := buf.String()
	for _, secret := range []string{"ghp_topsecret", "emb-topsecret", "sk-topsecret"} {
		if strings.Contains(output, secret) {
			t.Errorf("Secret %q leaked into log output", secret)
		}
	}
	if !strings.Contains(output, "chunk_size=1000") {
		t.Errorf("Expected ingest settings in log output, got: %s", output)
	}
}

func TestLogWithLogger_SkipsEmbeddingForBleve(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := validSettings()
	s.Index.Backend = IndexBackendBleve

	LogWithLogger(s, logger)

	if strings.Contains(buf.String(), "Config: embedding") {
		t.Error("Expected no embedding settings for the bleve backend")
	}
}

func TestSettingsLogValue(t *testing.T) {
	s := validSettings()
	s.LLM.APIKey = "sk-topsecret"

	val := SettingsLogValue(*s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}
	if strings.Contains(val.String(), "sk-topsecret") {
		t.Error("Expected LLM API key to be masked")
	}
}

func TestAuthSettingsLogValue(t *testing.T) {
	s := AuthSettings{
		Type:    AuthTypeAPIKey,
		APIKeys: []string{"key1", "key2"},
		Basic:   BasicAuthSettings{Username: "user", Password: "pass"},
	}

	val := AuthSettingsLogValue(s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}
	if strings.Contains(val.String(), "key1") {
		t.Error("Expected API keys to be masked")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"noisy": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
