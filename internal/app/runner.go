package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/config"
	mcputil "github.com/sha1n/mcp-repo-ingest/internal/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/pipeline"
	"github.com/spf13/pflag"
)

// ServerName is the MCP implementation name advertised to clients.
const ServerName = "repo-ingest-mcp"

// shutdownTimeout bounds how long in-flight jobs get to settle on exit.
const shutdownTimeout = 30 * time.Second

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	StartSSEServer    func(*mcp.Server, *config.Settings) error
	CreateServer      func(*config.Settings, string) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:   config.LoadSettingsWithFlags,
		ValidSettings:  config.ValidateSettings,
		StartSSEServer: StartSSEServer,
		CreateServer:   CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr, stdout carries the stdio transport
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(settings.LogLevel)})
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting repository ingestion MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings, version)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Start server
	if settings.Transport == "stdio" {
		// Use custom transport if provided (for testing), otherwise use stdio
		transport := params.CustomIOTransport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		return mcpServer.Run(ctx, transport)
	}

	slog.Info("Starting SSE server", "host", settings.Host, "port", settings.Port)
	return params.StartSSEServer(mcpServer, settings)
}

// CreateMCPServer creates the ingestion service and the MCP server exposing it.
// The returned cleanup drains running jobs and closes the index.
func CreateMCPServer(settings *config.Settings, version string) (*mcp.Server, func(), error) {
	svc, err := pipeline.NewService(settings, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ingestion service: %w", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			slog.Error("Failed to close ingestion service", "error", err)
		}
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:    ServerName,
		Version: version,
		Service: svc,
	})

	return server, cleanup, nil
}
