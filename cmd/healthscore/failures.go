// ABOUTME: CLI command listing days whose aggregation failed after storage.
// ABOUTME: Reads the diagnostics sink that 'repair' drains.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var failuresLimit int

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List days waiting for repair",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDiagnostics()
		if err != nil {
			return err
		}

		pending, err := d.PendingFailures(cmd.Context(), failuresLimit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No failed days.")
			return nil
		}

		for _, f := range pending {
			fmt.Printf("%s %s %s %s\n",
				f.Date,
				padRight(truncate(f.UserID, 20), 20),
				faint.Sprintf("x%d last %s", f.Attempts, f.LastSeen.Format("2006-01-02 15:04")),
				truncate(f.Error, 60))
		}
		return nil
	},
}

func init() {
	failuresCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 50, "max number of results (0 for all)")
	rootCmd.AddCommand(failuresCmd)
}
