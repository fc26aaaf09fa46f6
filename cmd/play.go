package cmd

import (
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start a session, or resume the last one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			cfg.Mode = mode
		}
		if subs, _ := cmd.Flags().GetStringSlice("subtopic"); len(subs) > 0 {
			cfg.Subtopics = subs
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runApp(cmd)
	},
}

func init() {
	playCmd.Flags().String("mode", "", "Item mode: flashcard (30s) or quiz (60s)")
	playCmd.Flags().StringSlice("subtopic", nil, "Subtopic to draw fresh items from (repeatable)")
}
