package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newTrustCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var allowExec, denyExec, allowMcp, denyMcp bool

	cmd := &cobra.Command{
		Use:   "trust <name> <version>",
		Short: "Grant or revoke exec/mcp trust for one resolved package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if allowExec && denyExec {
				return fmt.Errorf("--allow-exec and --deny-exec are mutually exclusive")
			}
			if allowMcp && denyMcp {
				return fmt.Errorf("--allow-mcp and --deny-mcp are mutually exclusive")
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			var exec, mcp *bool
			if allowExec || denyExec {
				v := allowExec
				exec = &v
			}
			if allowMcp || denyMcp {
				v := allowMcp
				mcp = &v
			}
			if err := svc.Trust(args[0], args[1], exec, mcp); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"package": args[0] + "@" + args[1]}, fmt.Sprintf("updated trust for %s@%s", args[0], args[1]))
		},
	}
	cmd.Flags().BoolVar(&allowExec, "allow-exec", false, "trust this package to execute")
	cmd.Flags().BoolVar(&denyExec, "deny-exec", false, "revoke exec trust")
	cmd.Flags().BoolVar(&allowMcp, "allow-mcp", false, "trust this package's MCP servers")
	cmd.Flags().BoolVar(&denyMcp, "deny-mcp", false, "revoke MCP trust")
	return cmd
}
