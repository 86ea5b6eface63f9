// ABOUTME: Tests for the SQLite Repository implementation.
// ABOUTME: Covers enrichment upserts, device queries and the connection directory.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/healthscore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

func TestUpsertEnrichmentIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := models.NewEnrichmentRecord("user-1", "oura", "sleep", "dev-a", "2025-03-10").
		WithScore(models.ScoreSleep, 70, models.Contributors{"rem": 15.0}).
		WithRecordedAt(testDay)
	require.NoError(t, db.UpsertEnrichment(ctx, first))

	second := models.NewEnrichmentRecord("user-1", "oura", "sleep", "dev-a", "2025-03-10").
		WithScore(models.ScoreSleep, 82, models.Contributors{"rem": 21.0, "deep": 9.0}).
		WithRecordedAt(testDay.Add(time.Hour))
	require.NoError(t, db.UpsertEnrichment(ctx, second))
	require.NoError(t, db.UpsertEnrichment(ctx, second))

	all, err := db.ListEnrichment(ctx, "user-1", "", "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all[0]
	require.NotNil(t, got.SleepScore)
	assert.Equal(t, 82.0, *got.SleepScore)
	assert.Equal(t, models.Contributors{"rem": 21.0, "deep": 9.0}, got.SleepContributors)
	assert.True(t, got.RecordedAt.Equal(testDay.Add(time.Hour)))
	assert.Equal(t, first.ID, got.ID, "conflicting upsert keeps the original row id")
}

func TestUpsertEnrichmentOverwritesEveryMetric(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := models.NewEnrichmentRecord("user-1", "garmin", "daily", "dev-a", "2025-03-10").
		WithScore(models.ScoreStress, 40, models.Contributors{"hrv_rmssd": 50.0})
	require.NoError(t, db.UpsertEnrichment(ctx, r))

	// Later delivery for the same key without a stress score clears it.
	r2 := models.NewEnrichmentRecord("user-1", "garmin", "daily", "dev-b", "2025-03-10").
		WithScore(models.ScoreRespiratory, 91, nil)
	require.NoError(t, db.UpsertEnrichment(ctx, r2))

	got, err := db.GetEnrichment(ctx, "user-1", "garmin", "daily", "2025-03-10")
	require.NoError(t, err)
	assert.Nil(t, got.StressScore)
	assert.Nil(t, got.StressContributors)
	require.NotNil(t, got.RespiratoryScore)
	assert.Equal(t, 91.0, *got.RespiratoryScore)
	assert.Equal(t, "dev-b", got.DeviceID)
}

func TestUpsertEnrichmentRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		record *models.EnrichmentRecord
	}{
		{"missing user", models.NewEnrichmentRecord("", "oura", "sleep", "dev-a", "2025-03-10")},
		{"bad date", models.NewEnrichmentRecord("u", "oura", "sleep", "dev-a", "10/03/2025")},
		{"score out of range", models.NewEnrichmentRecord("u", "oura", "sleep", "dev-a", "2025-03-10").
			WithScore(models.ScoreSleep, 140, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, db.UpsertEnrichment(ctx, tt.record))
		})
	}
}

func TestGetEnrichmentNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetEnrichment(context.Background(), "nobody", "oura", "sleep", "2025-03-10")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListEnrichmentForDevices(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	older := models.NewEnrichmentRecord("user-1", "oura", "sleep", "dev-a", "2025-03-10").
		WithScore(models.ScoreSleep, 80, nil).WithRecordedAt(testDay)
	newer := models.NewEnrichmentRecord("user-1", "whoop", "sleep", "dev-b", "2025-03-10").
		WithScore(models.ScoreSleep, 90, nil).WithRecordedAt(testDay.Add(2 * time.Hour))
	empty := models.NewEnrichmentRecord("user-1", "garmin", "sleep", "dev-c", "2025-03-10").
		WithRecordedAt(testDay.Add(3 * time.Hour))
	otherDay := models.NewEnrichmentRecord("user-1", "oura", "sleep", "dev-a", "2025-03-11").
		WithScore(models.ScoreSleep, 60, nil)
	otherUser := models.NewEnrichmentRecord("user-2", "oura", "sleep", "dev-a", "2025-03-10").
		WithScore(models.ScoreSleep, 10, nil)

	for _, r := range []*models.EnrichmentRecord{older, newer, empty, otherDay, otherUser} {
		require.NoError(t, db.UpsertEnrichment(ctx, r))
	}

	got, err := db.ListEnrichmentForDevices(ctx, "user-1", []string{"dev-a", "dev-b", "dev-c"}, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, got, 2, "rows without any metric are excluded")
	assert.Equal(t, "whoop", got[0].Provider, "most recent delivery first")
	assert.Equal(t, "oura", got[1].Provider)

	none, err := db.ListEnrichmentForDevices(ctx, "user-1", nil, "2025-03-10")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDistinctUserDates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	records := []*models.EnrichmentRecord{
		models.NewEnrichmentRecord("user-2", "oura", "sleep", "d1", "2025-03-10").WithScore(models.ScoreSleep, 70, nil),
		models.NewEnrichmentRecord("user-1", "oura", "sleep", "d2", "2025-03-11").WithScore(models.ScoreSleep, 70, nil),
		models.NewEnrichmentRecord("user-1", "whoop", "sleep", "d3", "2025-03-11").WithScore(models.ScoreSleep, 75, nil),
		models.NewEnrichmentRecord("user-1", "oura", "sleep", "d2", "2025-03-09").WithScore(models.ScoreStress, 30, nil),
		models.NewEnrichmentRecord("user-3", "oura", "sleep", "d4", "2025-03-09"),
	}
	for _, r := range records {
		require.NoError(t, db.UpsertEnrichment(ctx, r))
	}

	pairs, err := db.DistinctUserDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.UserDate{
		{UserID: "user-1", Date: "2025-03-09"},
		{UserID: "user-1", Date: "2025-03-11"},
		{UserID: "user-2", Date: "2025-03-10"},
	}, pairs)
}

func TestListEnrichmentDateRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, date := range []string{"2025-03-08", "2025-03-09", "2025-03-10", "2025-03-11"} {
		r := models.NewEnrichmentRecord("user-1", "oura", "sleep", "dev-a", date).WithScore(models.ScoreSleep, 75, nil)
		require.NoError(t, db.UpsertEnrichment(ctx, r))
	}

	got, err := db.ListEnrichment(ctx, "user-1", "2025-03-09", "2025-03-10")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-09", got[0].SummaryDate)
	assert.Equal(t, "2025-03-10", got[1].SummaryDate)
}

func TestConnectionDirectory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "oura", "ext-b")))
	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "whoop", "ext-a")))
	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-2", "garmin", "ext-c")))

	c, err := db.LookupDevice(ctx, "ext-a")
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, "whoop", c.Provider)
	assert.True(t, c.Active)

	_, err = db.LookupDevice(ctx, "ext-missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.SetConnectionActive(ctx, "ext-a", false))

	ids, err := db.DeviceIDsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ext-a", "ext-b"}, ids, "inactive devices still contribute history")

	c, err = db.LookupDevice(ctx, "ext-a")
	require.NoError(t, err)
	assert.False(t, c.Active)

	conns, err := db.ListConnections(ctx, "")
	require.NoError(t, err)
	assert.Len(t, conns, 3)

	conns, err = db.ListConnections(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "ext-c", conns[0].ExternalDeviceID)

	err = db.SetConnectionActive(ctx, "ext-missing", true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertConnectionRelinks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "oura", "ext-a")))
	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-9", "oura", "ext-a")))

	c, err := db.LookupDevice(ctx, "ext-a")
	require.NoError(t, err)
	assert.Equal(t, "user-9", c.UserID)

	ids, err := db.DeviceIDsForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpenAppliesPragmas(t *testing.T) {
	db := setupTestDB(t)

	var mode string
	require.NoError(t, db.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	info, err := os.Stat(db.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

// setupTestDB creates a test database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "healthscore-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	dbPath := filepath.Join(tmpDir, "healthscore.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}
