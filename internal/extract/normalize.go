// ABOUTME: Normalization tables that map provider field names onto canonical metrics.
// ABOUTME: Applied once at extraction so storage and aggregation only see canonical keys.
package extract

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
)

// EnrichmentContainers lists the keys a data entry may carry its enrichment under,
// in lookup order.
var EnrichmentContainers = []string{"data_enrichment", "enrichment"}

// DateKeys are the entry keys consulted for the summary date, in priority order.
var DateKeys = []string{"summary_date", "date"}

// MetadataDateKeys are consulted under the entry's "metadata" object when no
// DateKeys are present.
var MetadataDateKeys = []string{"start_time", "end_time"}

// metricAlias names the fields that can carry one score and its contributors.
// Earlier aliases win when several are present.
type metricAlias struct {
	kind         models.ScoreKind
	scores       []string
	contributors []string
}

var metricAliases = []metricAlias{
	{
		kind:         models.ScoreSleep,
		scores:       []string{"sleep_score"},
		contributors: []string{"sleep_contributors"},
	},
	{
		kind:         models.ScoreStress,
		scores:       []string{"total_stress_score", "stress_score"},
		contributors: []string{"total_stress_contributors", "stress_contributors"},
	},
	{
		kind:         models.ScoreRespiratory,
		scores:       []string{"respiratory_score", "respiration_score"},
		contributors: []string{"respiratory_contributors", "respiration_contributors"},
	},
}

// contributorAliases folds provider-specific contributor names onto canonical ones.
var contributorAliases = map[string]string{
	"oxy":                       "oxygen_saturation",
	"spo2":                      "oxygen_saturation",
	"avg_saturation_percentage": "oxygen_saturation",
	"hrv":                       "hrv_rmssd",
	"rmssd":                     "hrv_rmssd",
	"avg_hrv_rmssd":             "hrv_rmssd",
	"rhr":                       "resting_heart_rate",
	"resting_hr":                "resting_heart_rate",
	"breaths_per_min":           "respiration_rate",
	"breathing_rate":            "respiration_rate",
}

// CanonicalContributor returns the canonical name for a contributor key.
func CanonicalContributor(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if canonical, ok := contributorAliases[k]; ok {
		return canonical
	}
	return k
}

// normalizeContributors lower-cases and folds keys, drops array, object and
// null values, and converts numbers to float64. A key that is already canonical
// wins over any alias folding onto it; among aliases the lexically first wins.
func normalizeContributors(raw map[string]any) models.Contributors {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(models.Contributors, len(raw))
	canonicalSet := make(map[string]bool, len(raw))
	for _, k := range keys {
		v, ok := scalar(raw[k])
		if !ok {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(k))
		canonical := CanonicalContributor(k)
		direct := lower == canonical

		switch {
		case direct && !canonicalSet[canonical]:
			out[canonical] = v
			canonicalSet[canonical] = true
		case !direct:
			if _, taken := out[canonical]; !taken {
				out[canonical] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// scalar keeps numbers, strings and bools. Numbers and numeric strings come
// back as float64.
func scalar(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		if f, ok := numeric(t); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
		return t, true
	case bool:
		return t, true
	}
	return nil, false
}

// numeric parses a score value. Numeric strings are accepted.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
