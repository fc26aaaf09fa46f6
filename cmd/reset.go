package cmd

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/abhisek/flashdrill/internal/session"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the saved session and local cooldown",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		userID, err := resolveLearner(ctx, st)
		if err != nil {
			return err
		}

		snaps := newSnapshots(st, log.New(io.Discard, "", 0))
		snaps.Clear(ctx, session.SnapshotKey(userID))
		snaps.Clear(ctx, session.CooldownKey(userID))

		if shown, _ := cmd.Flags().GetBool("shown"); shown {
			if err := newClient().ResetShown(ctx); err != nil {
				return fmt.Errorf("reset shown items: %w", err)
			}
			fmt.Println("Cleared the backend's shown-item history.")
		}

		fmt.Printf("Cleared saved session for %s.\n", userID)
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("shown", false, "Also clear which items the backend has already served")
}
