// ABOUTME: Score kinds, contributor maps, and the per-device enrichment record.
// ABOUTME: Defines the sleep/stress/respiratory metrics shared by every layer.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScoreKind identifies one of the three enrichment scores.
type ScoreKind string

const (
	ScoreSleep       ScoreKind = "sleep"
	ScoreStress      ScoreKind = "stress"
	ScoreRespiratory ScoreKind = "respiratory"
)

// AllScoreKinds lists the score kinds in their canonical order.
var AllScoreKinds = []ScoreKind{ScoreSleep, ScoreStress, ScoreRespiratory}

// IsValidScoreKind checks if a string names a known score kind.
func IsValidScoreKind(s string) bool {
	for _, k := range AllScoreKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// DateLayout is the calendar-date format used for summary and score dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders the calendar date of t in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Contributors holds named sub-metrics that explain a score.
// Numeric values are float64; other scalars pass through unchanged.
type Contributors map[string]any

// Clone returns a shallow copy, or nil for an empty map.
func (c Contributors) Clone() Contributors {
	if len(c) == 0 {
		return nil
	}
	out := make(Contributors, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Scores carries the three optional scores and their contributor breakdowns.
type Scores struct {
	SleepScore       *float64 `json:"sleep_score,omitempty" yaml:"sleep_score,omitempty" validate:"omitempty,min=0,max=100"`
	StressScore      *float64 `json:"stress_score,omitempty" yaml:"stress_score,omitempty" validate:"omitempty,min=0,max=100"`
	RespiratoryScore *float64 `json:"respiratory_score,omitempty" yaml:"respiratory_score,omitempty" validate:"omitempty,min=0,max=100"`

	SleepContributors       Contributors `json:"sleep_contributors,omitempty" yaml:"sleep_contributors,omitempty"`
	StressContributors      Contributors `json:"stress_contributors,omitempty" yaml:"stress_contributors,omitempty"`
	RespiratoryContributors Contributors `json:"respiratory_contributors,omitempty" yaml:"respiratory_contributors,omitempty"`
}

// Score returns the score for a kind, nil when absent.
func (s *Scores) Score(k ScoreKind) *float64 {
	switch k {
	case ScoreSleep:
		return s.SleepScore
	case ScoreStress:
		return s.StressScore
	case ScoreRespiratory:
		return s.RespiratoryScore
	}
	return nil
}

// SetScore sets the score for a kind. A nil value clears it.
func (s *Scores) SetScore(k ScoreKind, v *float64) {
	switch k {
	case ScoreSleep:
		s.SleepScore = v
	case ScoreStress:
		s.StressScore = v
	case ScoreRespiratory:
		s.RespiratoryScore = v
	}
}

// ContributorsFor returns the contributor map for a kind.
func (s *Scores) ContributorsFor(k ScoreKind) Contributors {
	switch k {
	case ScoreSleep:
		return s.SleepContributors
	case ScoreStress:
		return s.StressContributors
	case ScoreRespiratory:
		return s.RespiratoryContributors
	}
	return nil
}

// SetContributors sets the contributor map for a kind.
func (s *Scores) SetContributors(k ScoreKind, c Contributors) {
	switch k {
	case ScoreSleep:
		s.SleepContributors = c
	case ScoreStress:
		s.StressContributors = c
	case ScoreRespiratory:
		s.RespiratoryContributors = c
	}
}

// HasAnyScore reports whether at least one score is present.
func (s *Scores) HasAnyScore() bool {
	return s.SleepScore != nil || s.StressScore != nil || s.RespiratoryScore != nil
}

// Float returns a pointer to v, for building optional scores.
func Float(v float64) *float64 {
	return &v
}

// EnrichmentRecord is one device's scores for one calendar date.
// Unique per (UserID, Provider, DataType, SummaryDate).
type EnrichmentRecord struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	UserID      string    `json:"user_id" yaml:"user_id" validate:"required"`
	Provider    string    `json:"provider" yaml:"provider" validate:"required"`
	DataType    string    `json:"data_type" yaml:"data_type" validate:"required"`
	DeviceID    string    `json:"device_id" yaml:"device_id" validate:"required"`
	SummaryDate string    `json:"summary_date" yaml:"summary_date" validate:"required,datetime=2006-01-02"`
	RecordedAt  time.Time `json:"recorded_at" yaml:"recorded_at"`
	Scores      `yaml:",inline"`
}

// NewEnrichmentRecord creates a record with a generated UUID and the current time.
func NewEnrichmentRecord(userID, provider, dataType, deviceID, summaryDate string) *EnrichmentRecord {
	return &EnrichmentRecord{
		ID:          uuid.New(),
		UserID:      userID,
		Provider:    provider,
		DataType:    dataType,
		DeviceID:    deviceID,
		SummaryDate: summaryDate,
		RecordedAt:  time.Now().UTC(),
	}
}

// WithRecordedAt sets a custom ingestion timestamp.
func (r *EnrichmentRecord) WithRecordedAt(t time.Time) *EnrichmentRecord {
	r.RecordedAt = t.UTC()
	return r
}

// WithScore sets one score and its contributors.
func (r *EnrichmentRecord) WithScore(k ScoreKind, v float64, c Contributors) *EnrichmentRecord {
	r.SetScore(k, Float(v))
	if c != nil {
		r.SetContributors(k, c)
	}
	return r
}

// Validate checks required keys, the date format and score ranges.
func (r *EnrichmentRecord) Validate() error {
	return validateStruct(r)
}

// UserDate identifies one aggregate row.
type UserDate struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
}

func (p UserDate) String() string {
	return p.UserID + "@" + p.Date
}
