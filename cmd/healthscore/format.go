// ABOUTME: Terminal formatting helpers shared by the CLI commands.
// ABOUTME: Renders scores, contributors and run summaries with faint/colored accents.
package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/models"
)

var faint = color.New(color.Faint)

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatContributors(c models.Contributors) string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := c[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func printScore(s *models.DailyHealthScore) {
	if s == nil {
		return
	}
	fmt.Printf("%s  %s\n", s.UserID, s.ScoreDate)
	for _, k := range models.AllScoreKinds {
		fmt.Printf("  %s %s", padRight(string(k), 12), formatScore(s.Score(k)))
		if c := formatContributors(s.ContributorsFor(k)); c != "" {
			fmt.Printf("  %s", faint.Sprint(c))
		}
		fmt.Println()
	}
	fmt.Printf("  %s %s\n", padRight("providers", 12), strings.Join(s.Providers, ", "))
	faint.Printf("  updated %s\n", s.LastUpdated.Format("2006-01-02 15:04:05"))
}

func printSummary(label string, s *backfill.Summary) {
	line := fmt.Sprintf("%s: %d day(s), %d processed, %d written, %d failed, %d skipped in %s",
		label, s.Total, s.Processed, s.Written, s.Failed, s.Skipped, s.Duration.Round(time.Millisecond))
	if s.Failed > 0 {
		color.Yellow("%s", line)
	} else {
		color.Green("✓ %s", line)
	}
	for _, f := range s.Failures {
		fmt.Printf("  %s %s\n", color.RedString(f.Key.String()), faint.Sprint(f.Error))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
