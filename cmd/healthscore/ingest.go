// ABOUTME: CLI command that replays a saved webhook payload through the ingestion pipeline.
// ABOUTME: Applies the same size guard, extraction, storage and aggregation as the webhook route.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/guard"
	"github.com/harperreed/healthscore/internal/ingest"
	"github.com/spf13/cobra"
)

var ingestAt string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Replay a webhook payload from a file",
	Long: `Run a saved webhook payload through the ingestion pipeline, exactly as
if it had been delivered to POST /webhooks/wearables. Use - to read stdin.

Entries without a summary date fall back to the receive time, which
defaults to now and can be set with --at.

EXAMPLES:

  healthscore ingest delivery.json
  healthscore ingest delivery.json --at "2025-03-10 08:00"
  cat delivery.json | healthscore ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		receivedAt := time.Now()
		if ingestAt != "" {
			t, err := parseTime(ingestAt)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			receivedAt = t
		}

		g := guard.New(cfg.Payload.SoftLimit, cfg.Payload.HardLimit)
		body, err := readPayload(g, args[0])
		if err != nil {
			return err
		}
		res, err := g.Inspect(body, 0)
		if err != nil {
			return err
		}
		if res.Degraded {
			color.Yellow("Payload of %d bytes degraded; stripped %d heavy key(s)", res.OriginalSize, res.StrippedKeys)
		}

		env, err := extract.Parse(res.Body)
		if err != nil {
			return err
		}

		d, err := openDiagnostics()
		if err != nil {
			return err
		}
		pipeline := ingest.New(extract.New(db), db, aggregate.New(db), d)
		report, err := pipeline.Process(cmd.Context(), env, receivedAt)
		if report != nil {
			printReport(report)
		}
		return err
	},
}

func readPayload(g *guard.Guard, path string) ([]byte, error) {
	if path == "-" {
		return g.ReadBody(os.Stdin, 0)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer func() { _ = f.Close() }()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return g.ReadBody(f, size)
}

func printReport(r *ingest.Report) {
	if r.Ignored {
		faint.Println("Event type carries no enrichment; ignored")
		return
	}
	color.Green("✓ Stored %d of %d record(s), aggregated %d day(s)", r.Stored, r.Extracted, r.Aggregated)
	if r.Unmapped > 0 {
		color.Yellow("  %d entr(ies) from unknown devices skipped", r.Unmapped)
	}
	if r.NoEnrichment > 0 {
		faint.Printf("  %d entr(ies) without enrichment\n", r.NoEnrichment)
	}
	if r.AggregationFailures > 0 {
		color.Yellow("  %d day(s) failed to aggregate; run 'healthscore repair'", r.AggregationFailures)
	}
}

// parseTime accepts the timestamp layouts operators type by hand.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestAt, "at", "", "receive time (YYYY-MM-DD HH:MM)")
	rootCmd.AddCommand(ingestCmd)
}
