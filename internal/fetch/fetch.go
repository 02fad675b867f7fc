// Package fetch implements the four source kinds of spec §3 "Manifest":
// semver-ranged registry dependencies, pinned git repositories, local
// paths, and integrity-pinned tarball URLs. Each kind gets its own
// resolver.Fetcher implementation, grounded on the teacher's
// internal/source provider-per-kind layout (git_provider.go,
// clawhub_provider.go) and dispatched by name spec kind from Manager.
package fetch

import (
	"context"
	"fmt"

	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/resolver"
)

// loadPackageManifestFrom reads botpack.pkg.toml from a fetched tree. A
// package with no manifest is treated as having no capabilities and no
// sub-dependencies rather than as an error, since plain asset bundles
// (spec §4.6 "Asset scanner", Non-goals) need not carry one.
func loadPackageManifestFrom(dir string) (manifest.PackageManifest, error) {
	pm, err := manifest.LoadPackageManifest(dir)
	if err != nil {
		return manifest.PackageManifest{}, nil
	}
	return pm, nil
}

func declaredDependencies(pm manifest.PackageManifest) map[string]manifest.DependencySpec {
	// PackageManifest doesn't carry a dependency table today (spec §3
	// "Package manifest" lists only exports/compat/capabilities); a
	// package's sub-dependencies are declared by its own botpack.toml if
	// it is itself a workspace, which the resolver doesn't recurse into.
	// Kept as a function (not inlined) so a future sub-dependency field
	// has one call site to wire up.
	return map[string]manifest.DependencySpec{}
}

// Manager dispatches a dependency spec to the fetcher implementation for
// its kind, implementing resolver.Fetcher as a single entry point the way
// the teacher's source.Manager dispatches to per-kind Providers
// (internal/source/manager.go).
type Manager struct {
	Registry *RegistryFetcher
	Git      *GitFetcher
	Path     *PathFetcher
	Tarball  *TarballFetcher
}

func NewManager(registry *RegistryFetcher, git *GitFetcher, path *PathFetcher, tarball *TarballFetcher) *Manager {
	return &Manager{Registry: registry, Git: git, Path: path, Tarball: tarball}
}

func (m *Manager) ListVersions(ctx context.Context, name string) ([]resolver.VersionEntry, error) {
	return m.Registry.ListVersions(ctx, name)
}

func (m *Manager) FetchVersion(ctx context.Context, name string, v resolver.VersionEntry) (resolver.Candidate, error) {
	return m.Registry.FetchVersion(ctx, name, v)
}

func (m *Manager) FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (resolver.Candidate, error) {
	switch spec.Kind {
	case manifest.SpecGit:
		return m.Git.FetchPinned(ctx, name, spec)
	case manifest.SpecPath:
		return m.Path.FetchPinned(ctx, name, spec)
	case manifest.SpecURL:
		return m.Tarball.FetchPinned(ctx, name, spec)
	default:
		return resolver.Candidate{}, fmt.Errorf("FETCH_DISPATCH: %q: unsupported pinned spec kind %q", name, spec.Kind)
	}
}
