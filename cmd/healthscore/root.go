// ABOUTME: Root Cobra command for the healthscore CLI.
// ABOUTME: Loads config, sets up logging and owns the store lifecycle via PersistentPre/PostRunE.
package main

import (
	"fmt"

	"github.com/harperreed/healthscore/internal/config"
	"github.com/harperreed/healthscore/internal/diagnostics"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/spf13/cobra"
)

// noStore marks commands that run without opening the database.
const noStore = "healthscore/no-store"

var (
	configPath string
	dbPath     string

	cfg  *config.Config
	db   *storage.DB
	diag *diagnostics.Store
)

var rootCmd = &cobra.Command{
	Use:   "healthscore",
	Short: "Wearable health score aggregation service",
	Long: `Healthscore ingests wearable-provider webhooks, stores per-device sleep,
stress and respiratory scores, and merges them into one daily score per user.

QUICK START:

  $ healthscore connections add user-1 oura dev-123   # Link a device to a user
  $ healthscore serve                                 # Accept webhooks on :8080
  $ healthscore scores list --user user-1             # Read merged daily scores

MAINTENANCE:

  $ healthscore backfill --workers 8     # Recompute every stored day
  $ healthscore repair                   # Retry days whose aggregation failed
  $ healthscore ingest payload.json      # Replay a saved webhook payload

MCP INTEGRATION:

  Run 'healthscore mcp' to expose daily scores read-only to MCP clients:

  {
    "mcpServers": {
      "healthscore": { "command": "healthscore", "args": ["mcp"] }
    }
  }

CONFIGURATION:

  Defaults, then ~/.config/healthscore/config.yaml (or --config, or
  HEALTHSCORE_CONFIG), then HEALTHSCORE_* environment variables.
  Run 'healthscore config show' to see the effective settings.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if cmd.HasParent() && cmd.Parent().Name() == "completion" {
			return nil
		}

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			c.Database.Path = dbPath
		}
		cfg = c
		logging.Init(cfg.Logging)

		if cmd.Annotations[noStore] == "true" {
			return nil
		}

		db, err = storage.Open(cfg.DBPath())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var firstErr error
		if diag != nil {
			firstErr = diag.Close()
			diag = nil
		}
		if db != nil {
			if err := db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			db = nil
		}
		return firstErr
	},
}

// openDiagnostics opens the failure sink once per invocation; it is closed
// with the store.
func openDiagnostics() (*diagnostics.Store, error) {
	if diag != nil {
		return diag, nil
	}
	d, err := diagnostics.Open(cfg.DiagnosticsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics: %w", err)
	}
	diag = d
	return diag, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "healthscore", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/healthscore/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides database.path)")
	rootCmd.AddCommand(versionCmd)
}
