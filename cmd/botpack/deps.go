package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
	"github.com/botpack/botpack/internal/manifest"
)

// parseDependencySpec turns the add command's mutually exclusive source
// flags into a manifest.DependencySpec, defaulting to a bare semver range
// when none of --git/--path/--url is given (spec §3 "Manifest",
// dependency table's four shapes).
func parseDependencySpec(rangeArg, git, rev, path, url, integrity string) (manifest.DependencySpec, error) {
	set := 0
	for _, v := range []string{git, path, url} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return manifest.DependencySpec{}, fmt.Errorf("only one of --git, --path, --url may be set")
	}
	switch {
	case git != "":
		return manifest.DependencySpec{Kind: manifest.SpecGit, Git: git, Rev: rev}, nil
	case path != "":
		return manifest.DependencySpec{Kind: manifest.SpecPath, Path: path}, nil
	case url != "":
		if integrity == "" {
			return manifest.DependencySpec{}, fmt.Errorf("--url requires --integrity")
		}
		return manifest.DependencySpec{Kind: manifest.SpecURL, URL: url, Integrity: integrity}, nil
	default:
		if rangeArg == "" {
			rangeArg = "*"
		}
		return manifest.DependencySpec{Kind: manifest.SpecSemver, Range: rangeArg}, nil
	}
}

func newAddCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var rangeArg, git, rev, path, url, integrity string
	var noInstall bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Declare a new dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			spec, err := parseDependencySpec(rangeArg, git, rev, path, url, integrity)
			if err != nil {
				return err
			}
			if err := svc.Add(args[0], spec); err != nil {
				return err
			}
			if err := print(*jsonOutput, map[string]string{"added": args[0]}, fmt.Sprintf("added %s", args[0])); err != nil {
				return err
			}
			if !noInstall && svc.Manifest.Sync.OnAdd {
				if _, err := svc.Install(cmd.Context(), app.InstallOptions{}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rangeArg, "range", "", "semver range (default: *)")
	cmd.Flags().StringVar(&git, "git", "", "git repository URL")
	cmd.Flags().StringVar(&rev, "rev", "", "git ref to pin (default: remote HEAD)")
	cmd.Flags().StringVar(&path, "path", "", "local directory dependency")
	cmd.Flags().StringVar(&url, "url", "", "tarball URL dependency")
	cmd.Flags().StringVar(&integrity, "integrity", "", "integrity digest required with --url")
	cmd.Flags().BoolVar(&noInstall, "no-install", false, "skip the install that normally follows add")
	return cmd
}

func newRemoveCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a declared dependency",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.Remove(args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"removed": args[0]}, fmt.Sprintf("removed %s", args[0]))
		},
	}
}

func newUpdateCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var frozen, offline, noSync bool
	cmd := &cobra.Command{
		Use:   "update [name...]",
		Short: "Re-resolve one or more dependencies, ignoring their current pin",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			result, err := svc.Update(cmd.Context(), args, app.InstallOptions{FrozenLockfile: frozen, Offline: offline, NoSync: noSync})
			if err != nil {
				return err
			}
			return print(*jsonOutput, result.Graph.Packages, fmt.Sprintf("updated %d packages", len(result.Graph.Packages)))
		},
	}
	cmd.Flags().BoolVar(&frozen, "frozen-lockfile", false, "fail instead of changing the lockfile")
	cmd.Flags().BoolVar(&offline, "offline", false, "resolve only from already-locked versions")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip the sync that normally follows update")
	return cmd
}
