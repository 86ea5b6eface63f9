// ABOUTME: MCP resource implementations for recent scores and the connection directory.
// ABOUTME: Provides healthscore://scores/recent and healthscore://connections.
package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	recentScoresURI = "healthscore://scores/recent"
	connectionsURI  = "healthscore://connections"
	recentDays      = 7
)

func (s *Server) registerResources() {
	// healthscore://scores/recent - every user's scores for the last week
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         recentScoresURI,
		Name:        "Recent Daily Scores",
		Description: "Daily health scores for every user over the last 7 days, grouped by user",
		MIMEType:    "application/json",
	}, s.handleRecentScoresResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         connectionsURI,
		Name:        "Wearable Connections",
		Description: "Every known device connection and its owner",
		MIMEType:    "application/json",
	}, s.handleConnectionsResource)
}

// Resource handlers

func (s *Server) handleRecentScoresResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	today := s.now().UTC()
	from := models.FormatDate(today.AddDate(0, 0, -(recentDays - 1)))
	to := models.FormatDate(today)

	scores, err := s.repo.ListDailyScores(ctx, "", from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily scores: %w", err)
	}

	users := make(map[string][]*models.DailyHealthScore)
	for _, sc := range scores {
		users[sc.UserID] = append(users[sc.UserID], sc)
	}

	result := map[string]any{
		"from":  from,
		"to":    to,
		"users": users,
		"count": len(scores),
	}
	return jsonResource(recentScoresURI, result)
}

func (s *Server) handleConnectionsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	conns, err := s.repo.ListConnections(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	if conns == nil {
		conns = []*models.WearableConnection{}
	}
	return jsonResource(connectionsURI, map[string]any{"connections": conns, "count": len(conns)})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
