// ABOUTME: Pure cross-device merge of one user's enrichment records for one day.
// ABOUTME: Scores and numeric contributors are plain means rounded to two decimals.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/harperreed/healthscore/internal/models"
)

// Merge builds the daily aggregate from records, which should be ordered most
// recent delivery first. It returns nil when no record carries a score.
// Identical inputs produce identical outputs apart from LastUpdated.
func Merge(userID, date string, records []*models.EnrichmentRecord, now time.Time) *models.DailyHealthScore {
	var scored []*models.EnrichmentRecord
	for _, r := range records {
		if r != nil && r.HasAnyScore() {
			scored = append(scored, r)
		}
	}
	if len(scored) == 0 {
		return nil
	}

	out := &models.DailyHealthScore{
		UserID:      userID,
		ScoreDate:   date,
		Providers:   providers(scored),
		LastUpdated: now.UTC(),
	}

	for _, k := range models.AllScoreKinds {
		var values []float64
		var maps []models.Contributors
		for _, r := range scored {
			if v := r.Score(k); v != nil {
				values = append(values, *v)
			}
			if c := r.ContributorsFor(k); len(c) > 0 {
				maps = append(maps, c)
			}
		}
		if len(values) > 0 {
			out.SetScore(k, models.Float(round2(mean(values))))
		}
		out.SetContributors(k, mergeContributors(maps))
	}

	return out
}

// mergeContributors averages numeric keys over the maps that carry them.
// A key with no numeric value anywhere keeps the first map's value.
func mergeContributors(maps []models.Contributors) models.Contributors {
	if len(maps) == 0 {
		return nil
	}

	sums := make(map[string][]float64)
	first := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			if f, ok := v.(float64); ok {
				sums[k] = append(sums[k], f)
				continue
			}
			if _, seen := first[k]; !seen {
				first[k] = v
			}
		}
	}

	out := make(models.Contributors, len(sums)+len(first))
	for k, vals := range sums {
		out[k] = round2(mean(vals))
	}
	for k, v := range first {
		if _, numeric := out[k]; !numeric {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func providers(records []*models.EnrichmentRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Provider] {
			seen[r.Provider] = true
			out = append(out, r.Provider)
		}
	}
	sort.Strings(out)
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
