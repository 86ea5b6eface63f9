// ABOUTME: CLI command for copying another healthscore database into this one.
// ABOUTME: Used when moving the data directory or consolidating stores.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateFrom   string
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate --from <path>",
	Short: "Copy another database into this one",
	Long: `Copy connections, enrichment history and daily scores from another
healthscore SQLite database into the configured one.

Every write is an upsert: rows already present are overwritten with the
source's values, and an interrupted migration can simply be rerun.

USAGE:

  healthscore migrate --from old.db --dry-run   # Preview counts
  healthscore migrate --from old.db             # Perform the copy`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateFrom == "" {
			return fmt.Errorf("--from is required")
		}
		if migrateFrom == db.Path() {
			return fmt.Errorf("source and destination are the same database")
		}

		ok, err := storage.FileHasData(migrateFrom)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no data at %s", migrateFrom)
		}

		src, err := storage.Open(migrateFrom)
		if err != nil {
			return fmt.Errorf("failed to open source: %w", err)
		}
		defer func() { _ = src.Close() }()

		if migrateDryRun {
			color.Yellow("Dry run mode - no changes will be made")
			data, err := src.GetAllData(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Would copy %d connection(s), %d enrichment record(s), %d daily score(s) into %s\n",
				len(data.Connections), len(data.Enrichment), len(data.DailyScores), db.Path())
			return nil
		}

		summary, err := storage.MigrateData(cmd.Context(), src, db)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		color.Green("✓ Migrated %d connection(s), %d enrichment record(s), %d daily score(s)",
			summary.Connections, summary.Enrichment, summary.DailyScores)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "source database path")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	rootCmd.AddCommand(migrateCmd)
}
