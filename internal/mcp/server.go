package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-repo-ingest/internal/pipeline"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Service backs the ingestion and query tools. Without it the server exposes no tools.
	Service *pipeline.Service
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Service != nil {
		RegisterIngestTools(s, cfg.Service)
		RegisterQueryTools(s, cfg.Service)
	}

	return s
}
