package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newInstallCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var frozen, offline, noSync bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve the manifest, populate the store, and sync every target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			result, err := svc.Install(cmd.Context(), app.InstallOptions{
				FrozenLockfile: frozen,
				Offline:        offline,
				NoSync:         noSync,
			})
			if err != nil {
				return err
			}
			return print(*jsonOutput, result.Graph.Packages, fmt.Sprintf("installed %d packages", len(result.Graph.Packages)))
		},
	}
	cmd.Flags().BoolVar(&frozen, "frozen-lockfile", false, "fail instead of changing the lockfile")
	cmd.Flags().BoolVar(&offline, "offline", false, "resolve only from already-locked versions")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip the sync that normally follows install")
	return cmd
}
