// Package mcp provides an MCP (Model Context Protocol) server that runs
// bucketing simulations and lists stored results.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/logging"
	"github.com/nvandessel/bucketsim/internal/ratelimit"
	"github.com/nvandessel/bucketsim/internal/store"
)

// Server wraps the MCP SDK server and provides bucketsim tools.
type Server struct {
	server       *sdk.Server
	store        store.ResultStore
	root         string
	base         *config.Config
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "bucketsim")
	Version string // Server version
	Root    string // Project root directory

	// Base supplies defaults for tool arguments left unset. nil uses
	// config.Default().
	Base *config.Config

	// Store overrides the SQLite results store under Root.
	Store store.ResultStore

	Logger *slog.Logger
}

// NewServer creates a new MCP server with bucketsim tools.
func NewServer(cfg *Config) (*Server, error) {
	resultStore := cfg.Store
	if resultStore == nil {
		sqliteStore, err := store.NewSQLiteResultStore(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to create result store: %w", err)
		}
		resultStore = sqliteStore
	}

	base := cfg.Base
	if base == nil {
		base = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        resultStore,
		root:         cfg.Root,
		base:         base,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(store.DataDir(cfg.Root)),
		logger:       logger,
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()

	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	s.auditLogger.Close()
	return s.store.Close()
}
