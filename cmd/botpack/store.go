package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newPrefetchCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch",
		Short: "Warm the global store for every locked package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.Prefetch(cmd.Context()); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"status": "ok"}, "prefetch complete")
		},
	}
}

func newVerifyCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash every locked package's store object against its recorded integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			findings, err := svc.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, findings, "")
			}
			if len(findings) == 0 {
				fmt.Println("all packages verified")
				return nil
			}
			for _, f := range findings {
				fmt.Printf("%s: %s\n", f.Package, f.Message)
			}
			return &exitError{code: exitFetchStore, msg: fmt.Sprintf("%d package(s) failed verification", len(findings))}
		},
	}
}

func newPruneCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove store objects not referenced by the current lockfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			removed, err := svc.Prune(cmd.Context())
			if err != nil {
				return err
			}
			return print(*jsonOutput, removed, fmt.Sprintf("pruned %d object(s)", len(removed)))
		},
	}
}
