// ABOUTME: Export and import functionality for scoring data.
// ABOUTME: Supports JSON and YAML export of scores, enrichment history and connections.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = "1.0"

// ExportData represents the full export format for scoring data.
type ExportData struct {
	Version     string                       `json:"version" yaml:"version"`
	ExportedAt  time.Time                    `json:"exported_at" yaml:"exported_at"`
	Tool        string                       `json:"tool" yaml:"tool"`
	DailyScores []*models.DailyHealthScore   `json:"daily_scores" yaml:"daily_scores"`
	Enrichment  []*models.EnrichmentRecord   `json:"enrichment" yaml:"enrichment"`
	Connections []*models.WearableConnection `json:"connections" yaml:"connections"`
}

// GetAllData retrieves all data for export.
func (d *DB) GetAllData(ctx context.Context) (*ExportData, error) {
	scores, err := d.ListDailyScores(ctx, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("list daily scores: %w", err)
	}

	enrichment, err := d.allEnrichment(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrichment: %w", err)
	}

	conns, err := d.ListConnections(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	return &ExportData{
		Version:     ExportVersion,
		ExportedAt:  time.Now().UTC(),
		Tool:        "healthscore",
		DailyScores: nonNil(scores),
		Enrichment:  nonNil(enrichment),
		Connections: nonNil(conns),
	}, nil
}

func (d *DB) allEnrichment(ctx context.Context) ([]*models.EnrichmentRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+enrichmentColumns+`
		FROM enrichment_records
		ORDER BY user_id, summary_date, provider, data_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEnrichments(rows)
}

// ImportData restores connections and enrichment history, then writes the
// exported daily scores verbatim. Every write is an upsert, so importing the
// same export twice leaves the store unchanged.
func (d *DB) ImportData(ctx context.Context, data *ExportData) error {
	for _, c := range data.Connections {
		if err := d.UpsertConnection(ctx, c); err != nil {
			return fmt.Errorf("import connection: %w", err)
		}
	}
	for _, r := range data.Enrichment {
		if err := d.UpsertEnrichment(ctx, r); err != nil {
			return fmt.Errorf("import enrichment: %w", err)
		}
	}
	for _, s := range data.DailyScores {
		if err := upsertDailyScore(ctx, d.db, s); err != nil {
			return fmt.Errorf("import daily score: %w", err)
		}
	}
	return nil
}

// ImportJSON imports data from JSON bytes.
func (d *DB) ImportJSON(ctx context.Context, data []byte) error {
	var exportData ExportData
	if err := json.Unmarshal(data, &exportData); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}
	if exportData.Version != ExportVersion {
		return fmt.Errorf("unsupported export version %q", exportData.Version)
	}
	return d.ImportData(ctx, &exportData)
}

// ExportJSON exports all data as JSON.
func (d *DB) ExportJSON(ctx context.Context) ([]byte, error) {
	data, err := d.GetAllData(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ExportYAML exports all data as YAML, with daily scores grouped by user.
func (d *DB) ExportYAML(ctx context.Context) ([]byte, error) {
	data, err := d.GetAllData(ctx)
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version     string                       `yaml:"version"`
		ExportedAt  string                       `yaml:"exported_at"`
		Tool        string                       `yaml:"tool"`
		Users       map[string][]yamlDailyScore  `yaml:"users"`
		Connections []*models.WearableConnection `yaml:"connections"`
		Enrichment  int                          `yaml:"enrichment_records"`
	}{
		Version:     data.Version,
		ExportedAt:  data.ExportedAt.Format(time.RFC3339),
		Tool:        data.Tool,
		Users:       make(map[string][]yamlDailyScore),
		Connections: data.Connections,
		Enrichment:  len(data.Enrichment),
	}

	for _, s := range data.DailyScores {
		yamlData.Users[s.UserID] = append(yamlData.Users[s.UserID], yamlDailyScore{
			Date:      s.ScoreDate,
			Scores:    s.Scores,
			Providers: s.Providers,
			Updated:   s.LastUpdated.Format(time.RFC3339),
		})
	}

	return yaml.Marshal(yamlData)
}

type yamlDailyScore struct {
	Date          string   `yaml:"date"`
	models.Scores `yaml:",inline"`
	Providers     []string `yaml:"providers,flow"`
	Updated       string   `yaml:"last_updated"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
