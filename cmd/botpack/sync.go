package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/botpack/botpack/internal/app"
)

func newSyncCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var dryRun, clean, force, watch bool
	var targetNames []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Materialize locked packages' assets into every configured target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			opts := app.SyncOptions{TargetNames: targetNames}
			opts.DryRun = dryRun
			opts.Clean = clean
			opts.Force = force

			if !watch {
				results, err := svc.Sync(cmd.Context(), opts)
				if err != nil {
					return syncExitError(err)
				}
				return print(*jsonOutput, results, fmt.Sprintf("synced %d targets", len(results)))
			}
			return watchAndSync(cmd, svc, opts, *jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute plans without writing target files, MCP output, sync state or the catalog")
	cmd.Flags().BoolVar(&clean, "clean", false, "remove previously synced paths absent from the new plan")
	cmd.Flags().BoolVar(&force, "force", false, "apply even if out-of-band drift is detected")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-sync whenever the workspace or a locked package's files change")
	cmd.Flags().StringSliceVar(&targetNames, "target", nil, "sync only the named target(s) (default: all configured)")
	return cmd
}

// syncExitError maps a trust-blocked sync failure to exit code 6 (spec
// §6, scenario S4), leaving every other error's default exit code 1 alone.
func syncExitError(err error) error {
	var blocked *app.TrustBlockedError
	if errors.As(err, &blocked) {
		return &exitError{code: exitTrustBlocked, msg: err.Error()}
	}
	return err
}

// watchAndSync polls the workspace and virtual-store trees for content
// changes, re-running Sync whenever the aggregate tree hash moves (spec
// §4.7 "--watch: re-plans on filesystem events"). No fsnotify-equivalent
// library is wired into this module's dependency stack, so polling is the
// deliberate, dependency-free substitute (see DESIGN.md).
func watchAndSync(cmd *cobra.Command, svc *app.Service, opts app.SyncOptions, jsonOutput bool) error {
	const pollInterval = 2 * time.Second

	var lastHash string
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		default:
		}

		hash, err := watchedTreeHash(svc)
		if err != nil {
			return err
		}
		if hash != lastHash {
			results, err := svc.Sync(cmd.Context(), opts)
			if err != nil {
				return syncExitError(err)
			}
			if err := print(jsonOutput, results, fmt.Sprintf("synced %d targets", len(results))); err != nil {
				return err
			}
			lastHash = hash
		}

		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(pollInterval):
		}
	}
}

// watchedTreeHash is a cheap change detector over the workspace's own
// assets directory and the virtual store: path + size + mtime per entry,
// not a full content hash, since --watch only needs to notice that
// something moved, not what.
func watchedTreeHash(svc *app.Service) (string, error) {
	h := sha256.New()
	roots := []string{
		filepath.Join(svc.Root, svc.Manifest.Workspace.Dir),
		filepath.Join(svc.StateDir, "pkgs"),
	}
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return nil // a root that doesn't exist yet just contributes nothing
			}
			fmt.Fprintf(h, "%s\x00%d\x00%d\x00", path, info.Size(), info.ModTime().UnixNano())
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
