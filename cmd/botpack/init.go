package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newInitCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new workspace manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.Init(name); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"root": svc.Root}, fmt.Sprintf("initialized workspace at %s", svc.Root))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	return cmd
}
