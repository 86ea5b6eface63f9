// ABOUTME: Data migration between scoring stores.
// ABOUTME: Copies connections, enrichment history and daily scores from source to destination.

package storage

import (
	"context"
	"fmt"
	"os"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Connections int
	Enrichment  int
	DailyScores int
}

// MigrateData copies all data from src to dst storage. Every destination write
// is an upsert, so a migration interrupted part way can simply be rerun.
func MigrateData(ctx context.Context, src, dst Repository) (*MigrateSummary, error) {
	data, err := src.GetAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	if err := dst.ImportData(ctx, data); err != nil {
		return nil, fmt.Errorf("write destination: %w", err)
	}

	return &MigrateSummary{
		Connections: len(data.Connections),
		Enrichment:  len(data.Enrichment),
		DailyScores: len(data.DailyScores),
	}, nil
}

// FileHasData reports whether path exists and is a non-empty file.
// Returns false if the file does not exist.
func FileHasData(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
	return info.Size() > 0, nil
}
