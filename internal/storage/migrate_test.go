// ABOUTME: Tests for data migration between scoring stores.
// ABOUTME: Covers a full copy and rerunning a migration into a populated store.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateData(t *testing.T) {
	src := setupTestDB(t)
	seedExportData(t, src)
	dst := setupTestDB(t)
	ctx := context.Background()

	summary, err := MigrateData(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, &MigrateSummary{Connections: 1, Enrichment: 1, DailyScores: 1}, summary)

	// Rerunning is harmless.
	_, err = MigrateData(ctx, src, dst)
	require.NoError(t, err)

	records, err := dst.ListEnrichment(ctx, "user-1", "", "")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	scores, err := dst.ListDailyScores(ctx, "", "", "")
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestFileHasData(t *testing.T) {
	dir := t.TempDir()

	has, err := FileHasData(filepath.Join(dir, "missing.db"))
	require.NoError(t, err)
	assert.False(t, has)

	empty := filepath.Join(dir, "empty.db")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	has, err = FileHasData(empty)
	require.NoError(t, err)
	assert.False(t, has)

	full := filepath.Join(dir, "full.db")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0600))
	has, err = FileHasData(full)
	require.NoError(t, err)
	assert.True(t, has)
}
