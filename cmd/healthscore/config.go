// ABOUTME: CLI commands for inspecting configuration.
// ABOUTME: Prints the effective config (secrets masked) and the resolved file locations.
package main

import (
	"fmt"
	"os"

	"github.com/harperreed/healthscore/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration as YAML",
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config, database and diagnostics locations",
	Annotations: map[string]string{noStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		file := configPath
		if file == "" {
			file = os.Getenv(config.ConfigPathEnvVar)
		}
		if file == "" {
			file = config.GetConfigPath()
		}
		diagDir := cfg.DiagnosticsDir()
		if diagDir == "" {
			diagDir = "(in memory)"
		}
		fmt.Printf("config:      %s\n", file)
		fmt.Printf("database:    %s\n", cfg.DBPath())
		fmt.Printf("diagnostics: %s\n", diagDir)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
