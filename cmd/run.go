package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/flashdrill/internal/app"
	"github.com/abhisek/flashdrill/internal/screen"
	"github.com/abhisek/flashdrill/internal/screens/drill"
	"github.com/abhisek/flashdrill/internal/screens/history"
	"github.com/abhisek/flashdrill/internal/session"
	"github.com/abhisek/flashdrill/internal/store"
	"github.com/abhisek/flashdrill/internal/telemetry"
)

// learnerKey remembers the last learner entered in the TUI.
const learnerKey = "learner"

// runApp opens the store, builds the session engine, and launches the TUI.
// Without a configured learner the TUI asks for one first.
func runApp(cmd *cobra.Command) error {
	ctx := cmd.Context()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	endpoint := ""
	if cfg.TracingEnabled() {
		endpoint = cfg.OTelEndpoint
	}
	shutdown, err := telemetry.Setup(ctx, "flashdrill", currentBuild().Version, endpoint)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Tracing not configured:", err)
	}
	defer shutdown(context.WithoutCancel(ctx))

	display := &app.Display{}
	snaps := newSnapshots(st, logger)
	client := newClient()

	build := func(userID string) *session.Orchestrator {
		return session.New(session.Config{
			UserID:      userID,
			Subtopics:   cfg.Subtopics,
			Mode:        session.Mode(cfg.Mode),
			BatchSize:   cfg.BatchSize,
			MaxSwitches: cfg.MaxSwitches,
			MaxResets:   cfg.MaxResets,
			Cooldown:    cfg.Cooldown,
		}, session.Deps{
			Collab:  client,
			Store:   snaps,
			Display: display,
			Events:  st.EventRepo(),
			Logger:  logger,
		})
	}

	userID := cfg.UserID
	if userID == "" {
		userID = rememberedLearner(ctx, st)
	}

	opts := app.Options{
		Display: display,
		History: func() screen.Screen {
			return history.New(ctx, st.EventRepo(), userID)
		},
	}
	if userID != "" {
		opts.Engine = build(userID)
	} else {
		opts.NewEngine = func(id string) (drill.Engine, error) {
			if err := st.KV().Put(ctx, learnerKey, []byte(id)); err != nil {
				return nil, fmt.Errorf("remember learner: %w", err)
			}
			userID = id
			return build(id), nil
		}
	}

	return app.Run(ctx, opts)
}

// resolveLearner returns the configured learner, else the one last
// entered in the TUI.
func resolveLearner(ctx context.Context, st *store.Store) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}
	if id := rememberedLearner(ctx, st); id != "" {
		return id, nil
	}
	return "", errNoUser
}

func rememberedLearner(ctx context.Context, st *store.Store) string {
	b, ok, err := st.KV().Get(ctx, learnerKey)
	if err != nil || !ok {
		return ""
	}
	return string(b)
}
