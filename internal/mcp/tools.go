// ABOUTME: MCP tool implementations for daily scores, enrichment history and connections.
// ABOUTME: Every tool is a read; date arguments are YYYY-MM-DD.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultLimit = 30

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_daily_score",
		Description: "Get one user's merged sleep, stress and respiratory scores for a date",
	}, s.handleGetDailyScore)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_daily_scores",
		Description: "List a user's daily scores between two dates, newest first",
	}, s.handleListDailyScores)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_enrichment",
		Description: "List the per-device enrichment records behind a user's daily scores",
	}, s.handleListEnrichment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_connections",
		Description: "List wearable device connections, optionally for one user",
	}, s.handleListConnections)
}

// Tool input/output types

type getDailyScoreInput struct {
	UserID string `json:"user_id" jsonschema:"Internal user id"`
	Date   string `json:"date" jsonschema:"Day in YYYY-MM-DD"`
}

type listDailyScoresInput struct {
	UserID string `json:"user_id" jsonschema:"Internal user id"`
	From   string `json:"from,omitempty" jsonschema:"First day (YYYY-MM-DD), inclusive"`
	To     string `json:"to,omitempty" jsonschema:"Last day (YYYY-MM-DD), inclusive"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Max results (default 30)"`
}

type listEnrichmentInput struct {
	UserID string `json:"user_id" jsonschema:"Internal user id"`
	From   string `json:"from,omitempty" jsonschema:"First day (YYYY-MM-DD), inclusive"`
	To     string `json:"to,omitempty" jsonschema:"Last day (YYYY-MM-DD), inclusive"`
}

type listConnectionsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Only this user's connections"`
}

type scoresOutput struct {
	UserID string                     `json:"user_id"`
	Count  int                        `json:"count"`
	Scores []*models.DailyHealthScore `json:"scores"`
}

type enrichmentOutput struct {
	UserID  string                     `json:"user_id"`
	Count   int                        `json:"count"`
	Records []*models.EnrichmentRecord `json:"records"`
}

type connectionsOutput struct {
	Count       int                          `json:"count"`
	Connections []*models.WearableConnection `json:"connections"`
}

// Tool handlers

func (s *Server) handleGetDailyScore(ctx context.Context, req *mcp.CallToolRequest, input getDailyScoreInput) (*mcp.CallToolResult, any, error) {
	if input.UserID == "" {
		return nil, nil, errors.New("user_id is required")
	}
	if _, err := models.ParseDate(input.Date); err != nil {
		return nil, nil, err
	}

	score, err := s.repo.GetDailyScore(ctx, input.UserID, input.Date)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, map[string]any{"message": fmt.Sprintf("No score for %s on %s.", input.UserID, input.Date)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get daily score: %w", err)
	}
	return nil, score, nil
}

func (s *Server) handleListDailyScores(ctx context.Context, req *mcp.CallToolRequest, input listDailyScoresInput) (*mcp.CallToolResult, any, error) {
	if input.UserID == "" {
		return nil, nil, errors.New("user_id is required")
	}
	if err := checkRange(input.From, input.To); err != nil {
		return nil, nil, err
	}
	if input.Limit <= 0 {
		input.Limit = defaultLimit
	}

	scores, err := s.repo.ListDailyScores(ctx, input.UserID, input.From, input.To)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list daily scores: %w", err)
	}
	if len(scores) > input.Limit {
		scores = scores[:input.Limit]
	}
	if scores == nil {
		scores = []*models.DailyHealthScore{}
	}
	return nil, scoresOutput{UserID: input.UserID, Count: len(scores), Scores: scores}, nil
}

func (s *Server) handleListEnrichment(ctx context.Context, req *mcp.CallToolRequest, input listEnrichmentInput) (*mcp.CallToolResult, any, error) {
	if input.UserID == "" {
		return nil, nil, errors.New("user_id is required")
	}
	if err := checkRange(input.From, input.To); err != nil {
		return nil, nil, err
	}

	records, err := s.repo.ListEnrichment(ctx, input.UserID, input.From, input.To)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list enrichment: %w", err)
	}
	if records == nil {
		records = []*models.EnrichmentRecord{}
	}
	return nil, enrichmentOutput{UserID: input.UserID, Count: len(records), Records: records}, nil
}

func (s *Server) handleListConnections(ctx context.Context, req *mcp.CallToolRequest, input listConnectionsInput) (*mcp.CallToolResult, any, error) {
	conns, err := s.repo.ListConnections(ctx, input.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list connections: %w", err)
	}
	if conns == nil {
		conns = []*models.WearableConnection{}
	}
	return nil, connectionsOutput{Count: len(conns), Connections: conns}, nil
}

func checkRange(from, to string) error {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := models.ParseDate(d); err != nil {
			return err
		}
	}
	return nil
}
