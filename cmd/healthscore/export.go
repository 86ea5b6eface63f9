// ABOUTME: CLI commands for exporting and importing scoring data.
// ABOUTME: JSON is the full backup format; YAML is a human-readable summary.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export scoring data",
	Long: `Export connections, enrichment history and daily scores.

FORMATS:

  json   Full export, restorable with 'healthscore import'
  yaml   Daily scores grouped by user (human-readable, not restorable)

EXAMPLES:

  healthscore export                        # JSON to stdout
  healthscore export -o backup.json         # Save to file
  healthscore export --format yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error

		switch exportFormat {
		case "json":
			data, err = db.ExportJSON(cmd.Context())
		case "yaml":
			data, err = db.ExportYAML(cmd.Context())
		default:
			return fmt.Errorf("unknown format: %s (use json or yaml)", exportFormat)
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Exported to %s", exportOutput)
		} else {
			fmt.Println(string(data))
		}

		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import scoring data from a JSON export",
	Long: `Import a JSON file written by 'healthscore export'.

Every record is upserted, so importing the same file twice changes nothing.

EXAMPLES:

  healthscore import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		if err := db.ImportJSON(cmd.Context(), data); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.Green("✓ Imported from %s", filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format (json or yaml)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
