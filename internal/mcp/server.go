// Package mcp exposes the chat pipeline and direct database lookups as
// Model Context Protocol tools, with a database listing resource and a
// gene exploration prompt.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
)

// ChatProcessor answers one message given its history.
type ChatProcessor interface {
	ProcessQuery(ctx context.Context, message string, history []domain.Turn) *domain.ChatResponse
}

// DatabaseFetcher performs a single routed lookup.
type DatabaseFetcher interface {
	Supports(db domain.DBType) bool
	Fetch(ctx context.Context, db domain.DBType, term, sub string) domain.DatabaseResult
}

// Server represents the GeneGPT MCP server
type Server struct {
	mcpServer *mcp.Server
	processor ChatProcessor
	fetcher   DatabaseFetcher
	logger    *logrus.Logger
}

// NewServer creates the MCP server and registers its tools, resources and prompts.
func NewServer(cfg domain.MCPConfig, processor ChatProcessor, fetcher DatabaseFetcher, logger *logrus.Logger) *Server {
	name := cfg.ServerName
	if name == "" {
		name = "genegpt"
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: cfg.ServerVersion,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		processor: processor,
		fetcher:   fetcher,
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// Run serves over stdin/stdout until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting GeneGPT MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// MCPServer exposes the underlying SDK server, e.g. to connect other transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
