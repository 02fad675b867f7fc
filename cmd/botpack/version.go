package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/lockfile"
)

// Version, Commit and Date are stamped at release build time via
// -ldflags, following the teacher's cmd/skillpm/version.go; lockfile
// carries its own copy (lockfile.ToolVersion) stamped into every
// generated lockfile, kept in sync with Version in init below.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func init() {
	lockfile.ToolVersion = Version
}

func newVersionCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": Version,
				"commit":  Commit,
				"date":    Date,
			}
			if *jsonOutput {
				return print(true, info, "")
			}
			fmt.Printf("botpack %s\ncommit: %s\nbuilt at: %s\n", Version, Commit, Date)
			return nil
		},
	}
}
