package mcp

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/scip-indexer/internal/config"
	"github.com/dshills/scip-indexer/internal/indexer"
	"github.com/dshills/scip-indexer/internal/languages"
	"github.com/dshills/scip-indexer/internal/logging"
	"github.com/dshills/scip-indexer/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "scip-indexer"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Options contains the collaborators of a Server.
type Options struct {
	// Store records run history; nil disables the history tool.
	Store storage.Storage
	// Runner executes external indexers (default: real processes).
	Runner languages.CommandRunner
	// Logger receives lifecycle events in addition to the history store.
	Logger logging.Logger
	// LoadConfig reads per-project settings (default: config.Load).
	LoadConfig func(projectRoot string) (*config.Config, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	store      storage.Storage
	runner     languages.CommandRunner
	events     logging.Logger
	loadConfig func(string) (*config.Config, error)
	locks      indexer.LockSet
	toolNames  []string
}

// NewServer creates a new MCP server instance
func NewServer(opts Options) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithPromptCapabilities(false),
		),
		store:      opts.Store,
		runner:     opts.Runner,
		loadConfig: opts.LoadConfig,
	}
	if s.loadConfig == nil {
		s.loadConfig = config.Load
	}

	var sink logging.Logger
	if s.store != nil {
		sink = storage.NewEventSink(s.store)
	}
	s.events = logging.Multi(opts.Logger, sink)

	s.registerTools()
	s.registerPrompts()

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes.
// The caller owns the store.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.toolNames...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{indexTool(), s.handleIndex},
		{statusTool(), s.handleStatus},
		{historyTool(), s.handleHistory},
	}
	for _, t := range tools {
		s.mcp.AddTool(t.tool, t.handler)
		s.toolNames = append(s.toolNames, t.tool.Name)
	}
}

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(navigationHintPrompt(), s.handleNavigationHint)
}
