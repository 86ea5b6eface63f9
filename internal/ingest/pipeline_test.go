// ABOUTME: Tests for the two-stage ingestion pipeline.
// ABOUTME: Runs real extraction, SQLite storage and aggregation, with fakes for failure paths.
package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/diagnostics"
	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "healthscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "oura", "ext-oura")))
	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "whoop", "ext-whoop")))
	return db
}

func setupSink(t *testing.T) *diagnostics.Store {
	t.Helper()
	s, err := diagnostics.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func parse(t *testing.T, body string) *extract.Envelope {
	t.Helper()
	env, err := extract.Parse([]byte(body))
	require.NoError(t, err)
	return env
}

const ouraSleep = `{"type":"sleep","user":{"user_id":"ext-oura","provider":"oura"},
	"data":[{"summary_date":"2025-03-10","data_enrichment":{"sleep_score":78,"sleep_contributors":{"rem":18}}}]}`

const whoopSleep = `{"type":"sleep","user":{"user_id":"ext-whoop","provider":"whoop"},
	"data":[{"summary_date":"2025-03-10","data_enrichment":{"sleep_score":92,"sleep_contributors":{"rem":22}}}]}`

func TestProcessTwoDevices(t *testing.T) {
	db := setupStore(t)
	p := New(extract.New(db), db, aggregate.New(db), setupSink(t))
	ctx := context.Background()

	report, err := p.Process(ctx, parse(t, ouraSleep), received)
	require.NoError(t, err)
	assert.Equal(t, &Report{Extracted: 1, Stored: 1, Aggregated: 1}, report)

	_, err = p.Process(ctx, parse(t, whoopSleep), received.Add(time.Minute))
	require.NoError(t, err)

	score, err := db.GetDailyScore(ctx, "user-1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 85.00, *score.SleepScore)
	assert.Equal(t, models.Contributors{"rem": 20.0}, score.SleepContributors)
	assert.Equal(t, []string{"oura", "whoop"}, score.Providers)
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	db := setupStore(t)
	p := New(extract.New(db), db, aggregate.New(db), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Process(ctx, parse(t, ouraSleep), received)
		require.NoError(t, err)
	}

	records, err := db.ListEnrichment(ctx, "user-1", "", "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestProcessUnknownDeviceIsSkipped(t *testing.T) {
	db := setupStore(t)
	p := New(extract.New(db), db, aggregate.New(db), nil)

	report, err := p.Process(context.Background(), parse(t,
		`{"type":"sleep","user":{"user_id":"ext-nobody"},"data":[{"data_enrichment":{"sleep_score":50}}]}`), received)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unmapped)
	assert.Zero(t, report.Stored)
}

func TestProcessIgnoredEvent(t *testing.T) {
	db := setupStore(t)
	p := New(extract.New(db), db, aggregate.New(db), nil)

	report, err := p.Process(context.Background(), parse(t, `{"type":"healthcheck"}`), received)
	require.NoError(t, err)
	assert.True(t, report.Ignored)
}

// flakyStore fails upserts for one provider.
type flakyStore struct {
	failProvider string
	stored       []*models.EnrichmentRecord
}

func (f *flakyStore) UpsertEnrichment(_ context.Context, r *models.EnrichmentRecord) error {
	if r.Provider == f.failProvider {
		return errors.New("database is locked")
	}
	f.stored = append(f.stored, r)
	return nil
}

type recordingAggregator struct {
	err   error
	calls []models.UserDate
}

func (a *recordingAggregator) Aggregate(_ context.Context, userID, date string) (*aggregate.Outcome, error) {
	a.calls = append(a.calls, models.UserDate{UserID: userID, Date: date})
	if a.err != nil {
		return nil, a.err
	}
	return &aggregate.Outcome{Written: true}, nil
}

func TestProcessStageOneFailureContinues(t *testing.T) {
	db := setupStore(t)
	store := &flakyStore{failProvider: "oura"}
	agg := &recordingAggregator{}
	p := New(extract.New(db), store, agg, nil)

	env := parse(t, `{"type":"sleep","data":[
		{"user":{"user_id":"ext-oura"},"summary_date":"2025-03-10","data_enrichment":{"sleep_score":70}},
		{"user":{"user_id":"ext-whoop"},"summary_date":"2025-03-10","data_enrichment":{"sleep_score":80}},
		{"user":{"user_id":"ext-whoop"},"summary_date":"2025-03-09","data_enrichment":{"sleep_score":81}}
	]}`)

	report, err := p.Process(context.Background(), env, received)
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, 3, report.Extracted)
	assert.Equal(t, 2, report.Stored)
	assert.Len(t, store.stored, 2)
	assert.Equal(t, []models.UserDate{
		{UserID: "user-1", Date: "2025-03-09"},
		{UserID: "user-1", Date: "2025-03-10"},
	}, agg.calls)
}

func TestProcessStageTwoFailureGoesToSink(t *testing.T) {
	db := setupStore(t)
	sink := setupSink(t)
	agg := &recordingAggregator{err: errors.New("merge exploded")}
	p := New(extract.New(db), db, agg, sink)

	report, err := p.Process(context.Background(), parse(t, ouraSleep), received)
	require.NoError(t, err, "aggregation failures never reach the caller")
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 1, report.AggregationFailures)

	pending, err := sink.PendingFailures(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.UserDate{UserID: "user-1", Date: "2025-03-10"}, pending[0].Key())
	assert.Contains(t, pending[0].Error, "merge exploded")
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, *extract.Envelope, time.Time) (*extract.Result, error) {
	return nil, errors.New("directory offline")
}

func TestProcessExtractionFailure(t *testing.T) {
	db := setupStore(t)
	p := New(failingExtractor{}, db, aggregate.New(db), nil)

	_, err := p.Process(context.Background(), parse(t, ouraSleep), received)
	assert.ErrorContains(t, err, "directory offline")
}
