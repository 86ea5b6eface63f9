// ABOUTME: CLI commands that recompute daily scores from stored enrichment.
// ABOUTME: Provides backfill (every stored day), repair (failed days) and aggregate (one day).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/spf13/cobra"
)

var (
	backfillWorkers int
	backfillRunID   string
	backfillResume  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute the daily score of every stored day",
	Long: `Recompute the daily score of every (user, date) that has stored enrichment.

Failures are reported per day and never stop the run. Interrupting with
Ctrl-C finishes in-flight days and prints a partial summary.

CHECKPOINTS:

  --run-id names the run; completed days are remembered under it.
  --resume with the same --run-id skips days that already completed.

EXAMPLES:

  healthscore backfill
  healthscore backfill --workers 16 --run-id nightly
  healthscore backfill --run-id nightly --resume`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillResume && backfillRunID == "" {
			return errors.New("--resume requires --run-id")
		}
		workers := cfg.Backfill.Workers
		if cmd.Flags().Changed("workers") {
			workers = backfillWorkers
		}
		if workers < 1 || workers > 64 {
			return fmt.Errorf("--workers must be between 1 and 64, got %d", workers)
		}

		d, err := openDiagnostics()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job := backfill.New(db, aggregate.New(db), d, d, backfill.Options{
			Workers: workers,
			RunID:   backfillRunID,
			Resume:  backfillResume,
		})
		summary, err := job.Run(ctx)
		if summary != nil {
			printSummary("Backfill", summary)
		}
		if errors.Is(err, context.Canceled) {
			color.Yellow("Interrupted; rerun with --run-id and --resume to continue")
			return nil
		}
		return err
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Retry days whose aggregation failed",
	Long: `Re-aggregate every day recorded in the diagnostics sink after its
enrichment was stored but its daily score could not be written. Days that
now succeed are removed from the sink.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDiagnostics()
		if err != nil {
			return err
		}

		job := backfill.New(db, aggregate.New(db), nil, d, backfill.Options{Workers: cfg.Backfill.Workers})
		summary, err := job.Repair(cmd.Context())
		if err != nil {
			return err
		}
		if summary.Total == 0 {
			fmt.Println("No failed days to repair.")
			return nil
		}
		printSummary("Repair", summary)
		return nil
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <user-id> <date>",
	Short: "Recompute one user's daily score",
	Long: `Recompute the daily score for one user and date (YYYY-MM-DD) from the
enrichment stored for every device linked to the user.

EXAMPLES:

  healthscore aggregate user-1 2025-03-10`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, date := args[0], args[1]
		if _, err := models.ParseDate(date); err != nil {
			return err
		}

		out, err := aggregate.New(db).Aggregate(cmd.Context(), userID, date)
		if err != nil {
			return err
		}
		if !out.Written {
			color.Yellow("No scored enrichment for %s on %s; nothing written", userID, date)
			return nil
		}

		color.Green("✓ Aggregated %d record(s) for %s on %s", out.Records, userID, date)
		printScore(out.Score)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVarP(&backfillWorkers, "workers", "w", backfill.DefaultWorkers, "parallel workers (1-64)")
	backfillCmd.Flags().StringVar(&backfillRunID, "run-id", "", "checkpoint completed days under this id")
	backfillCmd.Flags().BoolVar(&backfillResume, "resume", false, "skip days already completed under --run-id")
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(aggregateCmd)
}
