// Command botpack is the CLI front end for the agent asset package
// manager (spec §4.9 "Command surface"), dispatching to internal/app.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

// ExitCoder lets a returned error carry a specific process exit code
// instead of the generic 1, mirroring the teacher's cmd/skillpm/main.go.
type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

// Exit codes per spec §6's command-surface table: each failure category
// gets its own code rather than collapsing everything onto the generic 1.
const (
	exitGeneric      = 1
	exitParse        = 2
	exitResolution   = 3
	exitFetchStore   = 4
	exitSyncConflict = 5
	exitTrustBlocked = 6
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var workspaceRoot string
	var profile string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{WorkspaceRoot: workspaceRoot, Profile: profile})
	}

	cmd := &cobra.Command{
		Use:           "botpack",
		Short:         "Dependency manager for agent skills, commands, agents and MCP servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&workspaceRoot, "root", "C", "", "workspace root (default: search upward for botpack.toml)")
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "named global workspace profile")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newInitCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAddCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newRemoveCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInstallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newUpdateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newSyncCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newPrefetchCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVerifyCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newPruneCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newTrustCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newTreeCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newInfoCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newWhyCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newCatalogCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAuditCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newMigrateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

// print renders payload as JSON when jsonOutput is set, otherwise prints
// the plain message (silent if message is empty), matching the teacher's
// single shared output helper.
func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
