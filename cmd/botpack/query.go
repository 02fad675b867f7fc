package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newListCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every resolved package",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			keys, err := svc.List()
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, keys, "")
			}
			if len(keys) == 0 {
				fmt.Println("no packages resolved")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func newTreeCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the resolved dependency graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			edges, err := svc.Tree()
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, edges, "")
			}
			for key, deps := range edges {
				fmt.Println(key)
				for _, d := range deps {
					fmt.Println("  └─ " + d)
				}
			}
			return nil
		},
	}
}

func newInfoCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show the resolved lockfile record for one package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			pkg, err := svc.Info(args[0], version)
			if err != nil {
				return err
			}
			return print(*jsonOutput, pkg, fmt.Sprintf("%s: %s", args[0], pkg.Resolved.Identity))
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to inspect (default: the direct dependency's resolved version)")
	return cmd
}

func newWhyCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "why <name>",
		Short: "Show what depends on a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			chains, err := svc.Why(args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, chains, "")
			}
			if len(chains) == 0 {
				fmt.Printf("nothing depends on %s\n", args[0])
				return nil
			}
			for _, c := range chains {
				fmt.Println(c)
			}
			return nil
		},
	}
}
