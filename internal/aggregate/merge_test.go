// ABOUTME: Tests for the pure cross-device merge.
// ABOUTME: Covers null-safe averaging, contributor merging and determinism.
package aggregate

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mergeNow = time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC)

func rec(provider string) *models.EnrichmentRecord {
	return models.NewEnrichmentRecord("user-1", provider, "sleep", "dev-"+provider, "2025-03-10")
}

func TestMergeNullSafeAveraging(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("oura").WithScore(models.ScoreSleep, 80, nil),
		rec("whoop").WithScore(models.ScoreSleep, 90, nil),
		rec("garmin").WithScore(models.ScoreStress, 30, nil),
	}

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	require.NotNil(t, got)
	require.NotNil(t, got.SleepScore)
	assert.Equal(t, 85.00, *got.SleepScore)
	require.NotNil(t, got.StressScore)
	assert.Equal(t, 30.0, *got.StressScore)
	assert.Nil(t, got.RespiratoryScore, "no device reported it")
	assert.Equal(t, []string{"garmin", "oura", "whoop"}, got.Providers)
	assert.True(t, got.LastUpdated.Equal(mergeNow))
}

func TestMergeContributorsPreserveUnmatchedKeys(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("oura").WithScore(models.ScoreSleep, 80, models.Contributors{"rem": 20.0, "deep": 10.0}),
		rec("whoop").WithScore(models.ScoreSleep, 90, models.Contributors{"rem": 30.0, "efficiency": 90.0}),
	}

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	require.NotNil(t, got)
	assert.Equal(t, models.Contributors{"rem": 25.0, "deep": 10.0, "efficiency": 90.0}, got.SleepContributors)
}

func TestMergeContributorsWithoutScore(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("oura").WithScore(models.ScoreStress, 40, nil),
		rec("whoop").WithScore(models.ScoreSleep, 90, models.Contributors{"rem": 22.0}),
	}
	records[0].SetContributors(models.ScoreSleep, models.Contributors{"rem": 18.0, "deep": 12.0})

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	require.NotNil(t, got)
	require.NotNil(t, got.SleepScore)
	assert.Equal(t, 90.0, *got.SleepScore)
	assert.Equal(t, models.Contributors{"rem": 20.0, "deep": 12.0}, got.SleepContributors)
}

func TestMergeNonNumericTakesFirstValue(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("oura").WithScore(models.ScoreSleep, 80, models.Contributors{"stage": "deep", "mixed": "n/a"}),
		rec("whoop").WithScore(models.ScoreSleep, 90, models.Contributors{"stage": "light", "mixed": 4.0}),
	}

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	require.NotNil(t, got)
	assert.Equal(t, "deep", got.SleepContributors["stage"], "first map wins")
	assert.Equal(t, 4.0, got.SleepContributors["mixed"], "numeric values take precedence")
}

func TestMergeRounding(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("a").WithScore(models.ScoreRespiratory, 70, models.Contributors{"respiration_rate": 14.25}),
		rec("b").WithScore(models.ScoreRespiratory, 71, models.Contributors{"respiration_rate": 14.0}),
		rec("c").WithScore(models.ScoreRespiratory, 71, nil),
	}

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	require.NotNil(t, got)
	assert.Equal(t, 70.67, *got.RespiratoryScore)
	assert.Equal(t, 14.13, got.RespiratoryContributors["respiration_rate"])
}

func TestMergeEmpty(t *testing.T) {
	assert.Nil(t, Merge("user-1", "2025-03-10", nil, mergeNow))
	assert.Nil(t, Merge("user-1", "2025-03-10", []*models.EnrichmentRecord{rec("oura")}, mergeNow))
}

func TestMergeIsDeterministic(t *testing.T) {
	records := []*models.EnrichmentRecord{
		rec("oura").WithScore(models.ScoreSleep, 78, models.Contributors{"rem": 18.0, "latency": "short", "deep": 9.5}),
		rec("whoop").WithScore(models.ScoreSleep, 92, models.Contributors{"rem": 22.0, "efficiency": 88.0}).
			WithScore(models.ScoreStress, 33.3, models.Contributors{"hrv_rmssd": 41.0}),
	}

	a := Merge("user-1", "2025-03-10", records, mergeNow)
	b := Merge("user-1", "2025-03-10", records, mergeNow)

	aj, err := json.Marshal(a)
	require.NoError(t, err)
	bj, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(aj), string(bj))
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	c := models.Contributors{"rem": 20.0}
	records := []*models.EnrichmentRecord{rec("oura").WithScore(models.ScoreSleep, 80, c)}

	got := Merge("user-1", "2025-03-10", records, mergeNow)
	got.SleepContributors["rem"] = 99.0
	assert.Equal(t, 20.0, c["rem"])
}
