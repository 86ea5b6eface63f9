// ABOUTME: CLI command for starting the read-only MCP server.
// ABOUTME: Runs the stdio MCP transport until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/healthscore/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server over stdin/stdout.

The server is read-only: it exposes merged daily scores, the enrichment
behind them and the device directory to summarizers and chat assistants.

AVAILABLE TOOLS:

  get_daily_score     One user's merged scores for a date
  list_daily_scores   A user's daily scores over a date range
  list_enrichment     Per-device records behind the daily scores
  list_connections    Device-to-user links

AVAILABLE RESOURCES:

  healthscore://scores/recent   Every user's scores for the last 7 days
  healthscore://connections     The device directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(db, version)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
