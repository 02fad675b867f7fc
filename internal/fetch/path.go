package fetch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/resolver"
)

// PathFetcher resolves local path dependencies: no network, no cache, the
// identity is simply the content digest of the directory tree at the
// moment of resolution (spec §4.1 "Path source", §9 open question
// "symlinks within path deps": never dereferenced, matching
// internal/digest's walk).
type PathFetcher struct {
	// BaseDir anchors relative dependency paths; normally the directory
	// containing the workspace's manifest.
	BaseDir string
}

func (p *PathFetcher) ListVersions(ctx context.Context, name string) ([]resolver.VersionEntry, error) {
	return nil, fmt.Errorf("FETCH_PATH: %q is a path dependency, not semver-ranged", name)
}

func (p *PathFetcher) FetchVersion(ctx context.Context, name string, v resolver.VersionEntry) (resolver.Candidate, error) {
	return resolver.Candidate{}, fmt.Errorf("FETCH_PATH: %q is a path dependency, not semver-ranged", name)
}

func (p *PathFetcher) FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (resolver.Candidate, error) {
	if spec.Kind != manifest.SpecPath {
		return resolver.Candidate{}, fmt.Errorf("FETCH_PATH: %q is not a path dependency", name)
	}
	abs := spec.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.BaseDir, spec.Path)
	}
	abs = filepath.Clean(abs)

	treeDigest, err := digest.Tree(abs)
	if err != nil {
		return resolver.Candidate{}, fmt.Errorf("FETCH_PATH: %s: %w", name, err)
	}

	pm, err := loadPackageManifestFrom(abs)
	if err != nil {
		return resolver.Candidate{}, err
	}

	return resolver.Candidate{
		Source:    lockfile.Source{Kind: "path", Abs: abs},
		LocalDir:  abs,
		Resolved:  lockfile.Resolved{Identity: treeDigest.String()},
		Integrity: treeDigest.String(),
		Capabilities: map[string]bool{
			"exec":    pm.Capabilities.Exec,
			"network": pm.Capabilities.Network,
			"mcp":     pm.Capabilities.Mcp,
		},
		Dependencies: declaredDependencies(pm),
	}, nil
}
