package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sha1n/mcp-repo-ingest/internal/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "repo-ingest-mcp"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Repository ingestion MCP server",
		Long: `Clones git repositories, splits their source into line-addressed chunks and
indexes them per session, then answers code search and questions over MCP.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithFlags(cmd.Context(), cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Version}} (%s)\n", build))

	app.RegisterFlags(rootCmd.Flags())
	rootCmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func runWithFlags(ctx context.Context, flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(ctx, app.DefaultRunParams(), flags, version)
}
