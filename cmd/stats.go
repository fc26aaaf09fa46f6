package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show answer totals and recent session activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		userID, err := resolveLearner(ctx, st)
		if err != nil {
			return err
		}

		repo := st.EventRepo()
		totals, err := repo.AnswerTotals(ctx)
		if err != nil {
			return fmt.Errorf("answer totals: %w", err)
		}
		fmt.Printf("Answered %d  Correct %d  Timed out %d  Accuracy %.0f%%\n\n",
			totals.Answered, totals.Correct, totals.TimedOut, totals.Accuracy()*100)

		events, err := repo.RecentSessionEvents(ctx, userID, limit)
		if err != nil {
			return fmt.Errorf("recent sessions: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No sessions yet.")
			return nil
		}

		fmt.Printf("%-19s  %-11s  %-8s  %5s  %5s  %7s  %9s  %s\n",
			"Time", "Action", "Session", "Batch", "Items", "Correct", "Incorrect", "Reason")
		fmt.Println(strings.Repeat("\u2500", 90))

		for _, e := range events {
			id := e.SessionID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Printf("%-19s  %-11s  %-8s  %5d  %5d  %7d  %9d  %s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, id,
				e.Batch, e.ItemsCompleted, e.CorrectCount, e.IncorrectCount, e.Reason)
		}

		fmt.Printf("\n%d events\n", len(events))
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("limit", 20, "Number of recent session events to show")
}
