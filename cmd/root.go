package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/flashdrill/internal/clock"
	"github.com/abhisek/flashdrill/internal/collab"
	"github.com/abhisek/flashdrill/internal/config"
	"github.com/abhisek/flashdrill/internal/persist"
	"github.com/abhisek/flashdrill/internal/store"
)

// cfg is loaded before any command runs.
var cfg config.Config

var errNoUser = errors.New("no learner configured: set FLASHDRILL_USER or pass --user")

var rootCmd = &cobra.Command{
	Use:   "flashdrill",
	Short: "Timed flashcard drills in the terminal",
	Long: "Flashdrill runs timed flashcard batches against a learning backend, " +
		"with follow-up questions, resumable sessions and a cooldown between batches.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides FLASHDRILL_DB env var)")
	rootCmd.PersistentFlags().String("user", "", "Learner ID (overrides FLASHDRILL_USER env var)")
	rootCmd.PersistentFlags().String("api", "", "Backend base URL (overrides FLASHDRILL_API_URL env var)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file to load")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	c, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		c.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		c.UserID = v
	}
	if v, _ := cmd.Flags().GetString("api"); v != "" {
		c.APIURL = v
	}
	cfg = c
	return nil
}

// resolveDBPath returns the database path using --db / FLASHDRILL_DB,
// then the default XDG path.
func resolveDBPath() (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}

func openStore() (*store.Store, error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// newSnapshots wraps the store's KV table with the snapshot envelope.
func newSnapshots(st *store.Store, logger *log.Logger) *persist.Store {
	return persist.New(st.KV(), clock.System{},
		persist.WithTTL(cfg.SnapshotTTL),
		persist.WithLogger(logger),
	)
}

func newClient() *collab.Client {
	return collab.NewClient(collab.ClientConfig{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.HTTPTimeout,
	}, nil)
}

// newLogger writes to FLASHDRILL_LOG_FILE when set. The terminal belongs
// to the TUI, so the default is to discard.
func newLogger() (*log.Logger, func() error, error) {
	if cfg.LogFile == "" {
		return log.New(io.Discard, "", 0), func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "flashdrill: ", log.LstdFlags|log.Lmsgprefix), f.Close, nil
}
