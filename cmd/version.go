package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Stamped with -ldflags "-X github.com/abhisek/flashdrill/cmd.version=v1.2.0
// -X github.com/abhisek/flashdrill/cmd.commit=... -X github.com/abhisek/flashdrill/cmd.date=...".
var (
	version string
	commit  string
	date    string
)

// buildInfo describes the running binary.
type buildInfo struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

// currentBuild prefers linker-stamped values and falls back to what the
// Go toolchain embeds for `go install` and VCS builds.
func currentBuild() buildInfo {
	b := buildInfo{Version: version, Commit: commit, Date: date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		b = b.fill(bi)
	}
	if b.Version == "" {
		b.Version = "(devel)"
	}
	return b
}

func (b buildInfo) fill(bi *debug.BuildInfo) buildInfo {
	if b.Version == "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	if len(b.Commit) > 12 {
		b.Commit = b.Commit[:12]
	}
	return b
}

func (b buildInfo) String() string {
	var extra []string
	if b.Commit != "" {
		c := b.Commit
		if b.Dirty {
			c += "-dirty"
		}
		extra = append(extra, c)
	}
	if b.Date != "" {
		extra = append(extra, "built "+b.Date)
	}
	if len(extra) == 0 {
		return "flashdrill " + b.Version
	}
	return fmt.Sprintf("flashdrill %s (%s)", b.Version, strings.Join(extra, ", "))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, commit and build date",
	Run: func(cmd *cobra.Command, args []string) {
		b := currentBuild()
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), b.Version)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), b)
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version number")
}
