package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/clove/internal/assistant"
	"github.com/ziadkadry99/clove/internal/registry"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes repository search tools.
type Server struct {
	ix   *registry.Indexer
	asst *assistant.Assistant
	log  zerolog.Logger
	mcp  *server.MCPServer
}

// NewServer creates a new MCP server. The ask tool is only registered
// when asst is non-nil.
func NewServer(ix *registry.Indexer, asst *assistant.Assistant, logger zerolog.Logger) *Server {
	s := &Server{
		ix:   ix,
		asst: asst,
		log:  logger,
	}

	s.mcp = server.NewMCPServer(
		"clove",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchRepositoryTool, s.handleSearchRepository)
	s.mcp.AddTool(buildContextTool, s.handleBuildContext)
	s.mcp.AddTool(listRepositoriesTool, s.handleListRepositories)
	if s.asst != nil {
		s.mcp.AddTool(askTool, s.handleAsk)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	s.log.Info().Str("version", Version).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}
