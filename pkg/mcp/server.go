package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"url-spider/pkg/config"
)

const (
	serverName = "url-spider"
)

// ServerVersion is reported to MCP clients; the CLI overrides it at build time
var ServerVersion = "dev"

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // Must be validated
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// Server exposes URL extraction and background crawls as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		ServerVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tools := []server.ServerTool{
		{
			Tool: mcp.NewTool("list_sites",
				mcp.WithDescription("List the site profiles configured for crawling"),
			),
			Handler: s.handleListSites,
		},
		{
			Tool: mcp.NewTool("extract_urls",
				mcp.WithDescription("Fetch a single URL and return the URLs referenced by it (links, scripts, API paths in inline JavaScript), normalized and filtered"),
				mcp.WithString("url",
					mcp.Required(),
					mcp.Description("The URL to fetch"),
				),
				mcp.WithBoolean("include_external",
					mcp.Description("Keep URLs on other domains (default: false)"),
				),
				mcp.WithString("scope",
					mcp.Description("Only return URLs of this scope: internal, subdomain or external"),
				),
			),
			Handler: s.handleExtractURLs,
		},
		{
			Tool: mcp.NewTool("crawl_urls",
				mcp.WithDescription("Start a background crawl from seed URLs or a configured site. Returns immediately with a job ID."),
				mcp.WithString("urls",
					mcp.Description("Seed URLs separated by commas or whitespace"),
				),
				mcp.WithString("site_key",
					mcp.Description("Site key from the config file; used when urls is empty"),
				),
				mcp.WithNumber("max_depth",
					mcp.Description("Maximum link depth from the seeds (default from config)"),
				),
				mcp.WithNumber("max_pages",
					mcp.Description("Maximum number of pages to fetch, 0 for unlimited"),
				),
				mcp.WithBoolean("include_external",
					mcp.Description("Record URLs on other domains (default: false)"),
				),
			),
			Handler: s.handleCrawlURLs,
		},
		{
			Tool: mcp.NewTool("get_job_status",
				mcp.WithDescription("Get the status and progress counters of a crawl job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by crawl_urls"),
				),
			),
			Handler: s.handleGetJobStatus,
		},
		{
			Tool: mcp.NewTool("get_job_result",
				mcp.WithDescription("Get the URLs discovered by a finished or cancelled crawl job"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by crawl_urls"),
				),
				mcp.WithString("scope",
					mcp.Description("Only return URLs of this scope: internal, subdomain or external"),
				),
				mcp.WithNumber("max_results",
					mcp.Description("Maximum number of URLs to return (default: 500)"),
				),
			),
			Handler: s.handleGetJobResult,
		},
		{
			Tool: mcp.NewTool("cancel_job",
				mcp.WithDescription("Cancel a running crawl job; URLs found so far stay available"),
				mcp.WithString("job_id",
					mcp.Required(),
					mcp.Description("The job ID returned by crawl_urls"),
				),
			),
			Handler: s.handleCancelJob,
		},
		{
			Tool: mcp.NewTool("list_jobs",
				mcp.WithDescription("List all crawl jobs of this server session"),
			),
			Handler: s.handleListJobs,
		},
	}
	s.mcpServer.AddTools(tools...)

	s.log.Infof("Registered %d MCP tools", len(tools))
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
