package cmd

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/cooldown"
	"github.com/abhisek/flashdrill/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session and cooldown",
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

		var snap session.Snapshot
		savedAt, ok := snaps.Restore(ctx, session.SnapshotKey(userID), &snap)
		if !ok {
			fmt.Println("No saved session.")
		} else {
			s := snap.Session
			fmt.Printf("Session   %s\n", s.ID)
			fmt.Printf("Phase     %s\n", snap.Phase)
			fmt.Printf("Batch     %d  (%d/%d items)\n", s.BatchNumber, s.ItemsCompleted, s.BatchSize)
			fmt.Printf("Score     %d correct, %d incorrect\n", s.CorrectCount, s.IncorrectCount)
			fmt.Printf("Warnings  %d/%d window switches\n", snap.Integrity.TabSwitchCount, snap.Integrity.MaxSwitches)
			fmt.Printf("Saved     %s ago (expires after %s)\n",
				time.Since(savedAt).Round(time.Second), snaps.TTL())
		}

		remote, _ := cmd.Flags().GetBool("remote")
		var client collab.Collaborator
		if remote {
			client = newClient()
		}
		cd := cooldown.New(client, snaps, session.CooldownKey(userID), clock.System{},
			cooldown.WithDuration(cfg.Cooldown))
		cd.Load(ctx)

		if remote {
			status, err := cd.CanStart(ctx)
			if err != nil {
				return fmt.Errorf("check cooldown: %w", err)
			}
			printCooldown(status.Remaining, string(status.Source))
			return nil
		}
		printCooldown(cd.Remaining(), string(cooldown.SourceLocal))
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("remote", false, "Ask the backend whether the next batch may start")
}

func printCooldown(rem time.Duration, source string) {
	if rem <= 0 {
		fmt.Printf("Cooldown  none (%s)\n", source)
		return
	}
	secs := int((rem + time.Second - 1) / time.Second)
	fmt.Printf("Cooldown  %d:%02d remaining (%s)\n", secs/60, secs%60, source)
}
