// ABOUTME: Read-only MCP server exposing daily scores to chat-context summarizers.
// ABOUTME: Wraps the MCP server around the score store; no tool writes.
package mcp

import (
	"context"
	"time"

	"github.com/harperreed/healthscore/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Reader is the storage the MCP server reads from.
type Reader interface {
	GetDailyScore(ctx context.Context, userID, date string) (*models.DailyHealthScore, error)
	ListDailyScores(ctx context.Context, userID, from, to string) ([]*models.DailyHealthScore, error)
	ListEnrichment(ctx context.Context, userID, from, to string) ([]*models.EnrichmentRecord, error)
	ListConnections(ctx context.Context, userID string) ([]*models.WearableConnection, error)
}

// Server wraps the MCP server with storage access.
type Server struct {
	mcpServer *mcp.Server
	repo      Reader
	now       func() time.Time
}

// NewServer creates a new MCP server over repo.
func NewServer(repo Reader, version string) (*Server, error) {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "healthscore",
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		repo:      repo,
		now:       time.Now,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
