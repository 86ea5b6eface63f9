// ABOUTME: Tests for score kinds, score accessors, and record validation.
// ABOUTME: Covers the kind-indexed helpers used by the aggregator.
package models

import (
	"strings"
	"testing"
	"time"
)

func TestIsValidScoreKind(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"sleep", true},
		{"stress", true},
		{"respiratory", true},
		{"readiness", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidScoreKind(tt.input); got != tt.want {
				t.Errorf("IsValidScoreKind(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestScoresAccessors(t *testing.T) {
	var s Scores
	if s.HasAnyScore() {
		t.Fatal("empty Scores should report no score")
	}

	for i, k := range AllScoreKinds {
		v := float64(10 * (i + 1))
		s.SetScore(k, Float(v))
		s.SetContributors(k, Contributors{"k": v})
	}

	for i, k := range AllScoreKinds {
		want := float64(10 * (i + 1))
		got := s.Score(k)
		if got == nil || *got != want {
			t.Errorf("Score(%s) = %v, want %v", k, got, want)
		}
		if c := s.ContributorsFor(k); c["k"] != want {
			t.Errorf("ContributorsFor(%s)[k] = %v, want %v", k, c["k"], want)
		}
	}

	s.SetScore(ScoreSleep, nil)
	if s.SleepScore != nil {
		t.Error("SetScore(nil) should clear the score")
	}
	if !s.HasAnyScore() {
		t.Error("expected remaining scores to be reported")
	}
}

func TestNewEnrichmentRecord(t *testing.T) {
	r := NewEnrichmentRecord("user-1", "OURA", "sleep", "dev-1", "2025-07-02")

	if r.ID.String() == "" {
		t.Error("expected UUID to be set")
	}
	if r.RecordedAt.IsZero() {
		t.Error("expected RecordedAt to be set")
	}
	if r.RecordedAt.Location() != time.UTC {
		t.Errorf("RecordedAt should be UTC, got %v", r.RecordedAt.Location())
	}
}

func TestEnrichmentRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *EnrichmentRecord)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(r *EnrichmentRecord) {},
		},
		{
			name:    "missing user",
			mutate:  func(r *EnrichmentRecord) { r.UserID = "" },
			wantErr: "UserID is required",
		},
		{
			name:    "bad date",
			mutate:  func(r *EnrichmentRecord) { r.SummaryDate = "07/02/2025" },
			wantErr: "SummaryDate must be a YYYY-MM-DD date",
		},
		{
			name:    "score above range",
			mutate:  func(r *EnrichmentRecord) { r.SleepScore = Float(140) },
			wantErr: "SleepScore must be within 0..100",
		},
		{
			name:    "negative score",
			mutate:  func(r *EnrichmentRecord) { r.StressScore = Float(-1) },
			wantErr: "StressScore must be within 0..100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewEnrichmentRecord("user-1", "OURA", "sleep", "dev-1", "2025-07-02").
				WithScore(ScoreSleep, 78, Contributors{"rem": 18.0})
			tt.mutate(r)

			err := r.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2025, 7, 2, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	if got := FormatDate(ts); got != "2025-07-03" {
		t.Errorf("FormatDate = %s, want 2025-07-03", got)
	}

	if _, err := ParseDate("2025-13-01"); err == nil {
		t.Error("expected error for invalid month")
	}
}

func TestContributorsClone(t *testing.T) {
	var empty Contributors
	if empty.Clone() != nil {
		t.Error("Clone of empty map should be nil")
	}

	c := Contributors{"rem": 20.0}
	cp := c.Clone()
	cp["rem"] = 30.0
	if c["rem"] != 20.0 {
		t.Error("Clone should not alias the original map")
	}
}
