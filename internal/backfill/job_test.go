// ABOUTME: Tests for backfill runs, checkpoint resume, cancellation and repair.
// ABOUTME: Uses fakes for the aggregator and in-memory badger for checkpoints.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/diagnostics"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []models.UserDate

func (s staticSource) DistinctUserDates(context.Context) ([]models.UserDate, error) {
	return s, nil
}

type fakeAggregator struct {
	mu       sync.Mutex
	fail     map[models.UserDate]error
	calls    []models.UserDate
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	onCall   func(models.UserDate)
}

func (f *fakeAggregator) Aggregate(_ context.Context, userID, date string) (*aggregate.Outcome, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	key := models.UserDate{UserID: userID, Date: date}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	err := f.fail[key]
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(key)
	}
	if err != nil {
		return nil, err
	}
	return &aggregate.Outcome{Key: key, Written: true}, nil
}

func pairs(n int) staticSource {
	var out staticSource
	for i := 0; i < n; i++ {
		out = append(out, models.UserDate{UserID: fmt.Sprintf("user-%d", i%3), Date: fmt.Sprintf("2025-03-%02d", i+1)})
	}
	return out
}

func setupDiagnostics(t *testing.T) *diagnostics.Store {
	t.Helper()
	s, err := diagnostics.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunCollectsFailures(t *testing.T) {
	src := pairs(10)
	agg := &fakeAggregator{fail: map[models.UserDate]error{
		src[2]: errors.New("locked"),
		src[7]: errors.New("corrupt row"),
	}}

	summary, err := New(src, agg, nil, nil, Options{Workers: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 8, summary.Processed)
	assert.Equal(t, 8, summary.Written)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, summary.Failures, 2)
	assert.Len(t, agg.calls, 10, "failures never abort the run")
	assert.LessOrEqual(t, agg.maxSeen.Load(), int32(3))
}

func TestRunResumeSkipsCheckpointedPairs(t *testing.T) {
	src := pairs(6)
	ckpt := setupDiagnostics(t)
	ctx := context.Background()

	first := &fakeAggregator{fail: map[models.UserDate]error{src[4]: errors.New("locked")}}
	summary, err := New(src, first, ckpt, nil, Options{Workers: 2, RunID: "run-1"}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Processed)

	second := &fakeAggregator{}
	summary, err = New(src, second, ckpt, nil, Options{Workers: 2, RunID: "run-1", Resume: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, []models.UserDate{src[4]}, second.calls)
}

func TestRunWithoutResumeClearsStaleCheckpoints(t *testing.T) {
	src := pairs(4)
	ckpt := setupDiagnostics(t)
	ctx := context.Background()

	_, err := New(src, &fakeAggregator{}, ckpt, nil, Options{Workers: 2, RunID: "nightly"}).Run(ctx)
	require.NoError(t, err)

	// A fresh run under the same id fails half its pairs; their old
	// checkpoints must not survive into the next resume.
	fresh := &fakeAggregator{fail: map[models.UserDate]error{
		src[1]: errors.New("locked"),
		src[3]: errors.New("locked"),
	}}
	summary, err := New(src, fresh, ckpt, nil, Options{Workers: 2, RunID: "nightly"}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Skipped)
	assert.Len(t, fresh.calls, 4)

	for _, k := range []models.UserDate{src[1], src[3]} {
		done, err := ckpt.IsDone(ctx, "nightly", k)
		require.NoError(t, err)
		assert.False(t, done, k.String())
	}

	resumed := &fakeAggregator{}
	summary, err = New(src, resumed, ckpt, nil, Options{Workers: 1, RunID: "nightly", Resume: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.ElementsMatch(t, []models.UserDate{src[1], src[3]}, resumed.calls)
}

func TestRunCancellation(t *testing.T) {
	src := pairs(20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	agg := &fakeAggregator{onCall: func(models.UserDate) {
		if count.Add(1) == 3 {
			cancel()
		}
	}}

	summary, err := New(src, agg, nil, nil, Options{Workers: 1}).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, summary)
	assert.Equal(t, 20, summary.Total)
	assert.Equal(t, 3, summary.Processed, "the pair in flight at cancellation completes")
	assert.Less(t, len(agg.calls), 20)
}

func TestRunEmpty(t *testing.T) {
	summary, err := New(staticSource(nil), &fakeAggregator{}, nil, nil, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestRepairResolvesRecoveredPairs(t *testing.T) {
	sink := setupDiagnostics(t)
	ctx := context.Background()

	good := models.UserDate{UserID: "user-1", Date: "2025-03-10"}
	bad := models.UserDate{UserID: "user-2", Date: "2025-03-10"}
	for _, k := range []models.UserDate{good, bad} {
		_, err := sink.RecordFailure(ctx, k, errors.New("locked"))
		require.NoError(t, err)
	}

	agg := &fakeAggregator{fail: map[models.UserDate]error{bad: errors.New("still broken")}}
	summary, err := New(staticSource(nil), agg, nil, sink, Options{}).Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	pending, err := sink.PendingFailures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad, pending[0].Key())
}

func TestRepairKeepsFailureRecordedDuringRepair(t *testing.T) {
	sink := setupDiagnostics(t)
	ctx := context.Background()
	key := models.UserDate{UserID: "user-1", Date: "2025-03-10"}

	_, err := sink.RecordFailure(ctx, key, errors.New("locked"))
	require.NoError(t, err)

	// Ingestion fails the same pair again while repair is aggregating it.
	agg := &fakeAggregator{onCall: func(k models.UserDate) {
		_, err := sink.RecordFailure(context.Background(), k, errors.New("locked again"))
		assert.NoError(t, err)
	}}
	summary, err := New(staticSource(nil), agg, nil, sink, Options{}).Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Zero(t, summary.Processed)
	assert.Equal(t, 1, summary.Failed)

	pending, err := sink.PendingFailures(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "locked again", pending[0].Error)
}

func TestRunAgainstStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "healthscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	require.NoError(t, db.UpsertConnection(ctx, models.NewWearableConnection("user-1", "oura", "ext-oura")))
	for _, date := range []string{"2025-03-08", "2025-03-09", "2025-03-10"} {
		require.NoError(t, db.UpsertEnrichment(ctx, models.NewEnrichmentRecord("user-1", "oura", "sleep", "ext-oura", date).
			WithScore(models.ScoreSleep, 75, nil)))
	}

	summary, err := New(db, aggregate.New(db), nil, nil, Options{Workers: 2}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Written)

	scores, err := db.ListDailyScores(ctx, "user-1", "", "")
	require.NoError(t, err)
	assert.Len(t, scores, 3)
}
