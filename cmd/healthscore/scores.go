// ABOUTME: CLI commands for reading merged daily scores.
// ABOUTME: Provides scores list (table) and scores show (one day with contributors and sources).
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
	"github.com/spf13/cobra"
)

var (
	scoresUser  string
	scoresFrom  string
	scoresTo    string
	scoresLimit int
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Read daily health scores",
}

var scoresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List daily scores, newest first",
	Long: `List merged daily scores, newest first.

EXAMPLES:

  healthscore scores list
  healthscore scores list --user user-1 --from 2025-03-01 --to 2025-03-31
  healthscore scores list -n 7`,
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range []string{scoresFrom, scoresTo} {
			if d == "" {
				continue
			}
			if _, err := models.ParseDate(d); err != nil {
				return err
			}
		}

		scores, err := db.ListDailyScores(cmd.Context(), scoresUser, scoresFrom, scoresTo)
		if err != nil {
			return err
		}
		if scoresLimit > 0 && len(scores) > scoresLimit {
			scores = scores[:scoresLimit]
		}
		if len(scores) == 0 {
			fmt.Println("No scores found.")
			return nil
		}

		faint.Printf("%s %s %s %s %s %s\n",
			padRight("DATE", 10), padRight("USER", 20),
			padRight("SLEEP", 7), padRight("STRESS", 7), padRight("RESP", 7), "PROVIDERS")
		for _, s := range scores {
			fmt.Printf("%s %s %s %s %s %s\n",
				s.ScoreDate,
				padRight(truncate(s.UserID, 20), 20),
				padRight(formatScore(s.SleepScore), 7),
				padRight(formatScore(s.StressScore), 7),
				padRight(formatScore(s.RespiratoryScore), 7),
				faint.Sprint(strings.Join(s.Providers, ",")))
		}
		return nil
	},
}

var scoresShowCmd = &cobra.Command{
	Use:   "show <user-id> <date>",
	Short: "Show one daily score and the records behind it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, date := args[0], args[1]
		if _, err := models.ParseDate(date); err != nil {
			return err
		}

		score, err := db.GetDailyScore(cmd.Context(), userID, date)
		if errors.Is(err, storage.ErrNotFound) {
			color.Yellow("No score for %s on %s", userID, date)
			return nil
		}
		if err != nil {
			return err
		}
		printScore(score)

		records, err := db.ListEnrichment(cmd.Context(), userID, date, date)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		fmt.Println()
		faint.Println("  SOURCES")
		for _, r := range records {
			fmt.Printf("  %s %s %s %s %s\n",
				padRight(truncate(r.Provider, 10), 10),
				padRight(truncate(r.DeviceID, 16), 16),
				padRight(formatScore(r.SleepScore), 7),
				padRight(formatScore(r.StressScore), 7),
				formatScore(r.RespiratoryScore))
		}
		return nil
	},
}

func init() {
	scoresListCmd.Flags().StringVarP(&scoresUser, "user", "u", "", "only this user")
	scoresListCmd.Flags().StringVar(&scoresFrom, "from", "", "first day (YYYY-MM-DD)")
	scoresListCmd.Flags().StringVar(&scoresTo, "to", "", "last day (YYYY-MM-DD)")
	scoresListCmd.Flags().IntVarP(&scoresLimit, "limit", "n", 30, "max number of results")
	scoresCmd.AddCommand(scoresListCmd)
	scoresCmd.AddCommand(scoresShowCmd)
	rootCmd.AddCommand(scoresCmd)
}
