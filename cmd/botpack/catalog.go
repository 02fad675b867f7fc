package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newCatalogCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Emit the metadata index of every scanned asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			doc, err := svc.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			return print(*jsonOutput, doc, fmt.Sprintf("%d entries", len(doc.Entries)))
		},
	}
}

func newAuditCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var showLog bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report capability-bearing packages and their trust decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if showLog {
				events, err := svc.AuditEvents()
				if err != nil {
					return err
				}
				if *jsonOutput {
					return print(true, events, "")
				}
				if len(events) == 0 {
					fmt.Println("no audit events recorded")
					return nil
				}
				for _, ev := range events {
					fmt.Printf("%s %-10s %-8s %-6s %s\n", ev.Timestamp, ev.Operation, ev.Phase, ev.Status, ev.Message)
				}
				return nil
			}

			entries, err := svc.AuditTrust()
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, entries, "")
			}
			if len(entries) == 0 {
				fmt.Println("no capability-bearing packages locked")
				return nil
			}
			untrusted := 0
			for _, e := range entries {
				status := "trusted"
				if !e.Trusted {
					status = "blocked: " + e.Reason
					untrusted++
				}
				fmt.Printf("%s %s\n", e.Package, status)
			}
			if untrusted > 0 {
				return &exitError{code: exitTrustBlocked, msg: fmt.Sprintf("%d package(s) not trusted", untrusted)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showLog, "log", false, "show the recorded operation event log instead")
	return cmd
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run workspace health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.RunDoctor()
			if *jsonOutput {
				return print(true, report, "")
			}
			if report.Healthy {
				fmt.Println("workspace is healthy")
				return nil
			}
			for _, f := range report.Findings {
				fmt.Printf("[%s] %s: %s\n", f.Level, f.Code, f.Message)
			}
			return &exitError{code: exitGeneric, msg: fmt.Sprintf("%d finding(s)", len(report.Findings))}
		},
	}
}

func newMigrateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring an existing asset directory under botpack management",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.Migrate(); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"root": svc.Root}, fmt.Sprintf("migrated workspace at %s", svc.Root))
		},
	}
}
