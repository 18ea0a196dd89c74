package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"url-spider/pkg/mcp"
)

func newMcpServerCmd(global *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	var transport string
	var port int
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start an MCP (Model Context Protocol) server for AI tool integration",
		Long: `Start an MCP server exposing URL discovery as tools.

Available MCP Tools:
  list_sites      List configured site profiles
  extract_urls    Fetch one URL and return the URLs it references
  crawl_urls      Start a background crawl
  get_job_status  Progress of a crawl job
  get_job_result  URLs found by a crawl job, optionally filtered by scope
  cancel_job      Cancel a running crawl job
  list_jobs       List crawl jobs`,
		Example: `  # stdio transport (for desktop MCP clients)
  url-spider mcp-server --config config.yaml

  # SSE transport on port 8080
  url-spider mcp-server --transport sse --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitCode(doMcpServer(global, transport, port, stdout, stderr))
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio, sse)")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port (for sse transport)")
	return cmd
}

// doMcpServer is the testable implementation of the MCP server
func doMcpServer(global *globalOptions, transport string, port int, stdout, stderr io.Writer) int {
	// MCP protocol uses stdout, logs go to stderr
	log, err := setupLogger(global.logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if transport != "stdio" && transport != "sse" {
		fmt.Fprintf(stderr, "Error: unknown transport '%s' (supported: stdio, sse)\n", transport)
		return 1
	}

	appCfg, err := loadConfig(global.configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	mcp.ServerVersion = version
	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: global.configPath,
		Transport:  transport,
		Port:       port,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer func() { _ = server.Shutdown(context.Background()) }()

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
