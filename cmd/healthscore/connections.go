// ABOUTME: CLI commands for the wearable connection directory.
// ABOUTME: Seeds, lists and toggles device-to-user links used to attribute webhook data.
package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/spf13/cobra"
)

var connectionsUser string

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Manage wearable device connections",
	Long: `Manage the directory that maps provider device ids to internal users.

Webhook entries for devices not in this directory are skipped. Inactive
devices still contribute to aggregation for the days they reported.

EXAMPLES:

  healthscore connections add user-1 oura dev-123
  healthscore connections list --user user-1
  healthscore connections deactivate dev-123`,
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add <user-id> <provider> <external-device-id>",
	Short: "Link a device to a user",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn := models.NewWearableConnection(args[0], args[1], args[2])
		if err := db.UpsertConnection(cmd.Context(), conn); err != nil {
			return err
		}
		color.Green("✓ Linked %s device %s to %s", conn.Provider, conn.ExternalDeviceID, conn.UserID)
		return nil
	},
}

var connectionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List device connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		conns, err := db.ListConnections(cmd.Context(), connectionsUser)
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			fmt.Println("No connections found.")
			return nil
		}

		for _, c := range conns {
			status := color.GreenString("active")
			if !c.Active {
				status = faint.Sprint("inactive")
			}
			fmt.Printf("%s %s %s %s\n",
				padRight(truncate(c.ExternalDeviceID, 24), 24),
				padRight(truncate(c.UserID, 20), 20),
				padRight(c.Provider, 10),
				status)
		}
		return nil
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <external-device-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := db.SetConnectionActive(cmd.Context(), args[0], active)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no connection for device %s", args[0])
			}
			if err != nil {
				return err
			}
			color.Green("✓ Device %s %sd", args[0], use)
			return nil
		},
	}
}

func init() {
	connectionsListCmd.Flags().StringVarP(&connectionsUser, "user", "u", "", "only this user's devices")
	connectionsCmd.AddCommand(connectionsAddCmd)
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(setActiveCmd("deactivate", "Mark a device inactive", false))
	connectionsCmd.AddCommand(setActiveCmd("activate", "Mark a device active again", true))
	rootCmd.AddCommand(connectionsCmd)
}
