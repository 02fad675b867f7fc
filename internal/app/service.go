// Package app wires together the workspace, resolver, fetch, store,
// virtual store, lockfile, asset scanner, sync engine, trust gate and
// catalog packages into the operations exposed by the botpack CLI,
// grounded on the teacher's internal/app.Service aggregation-of-services
// shape (Service holds one handle per subsystem, New does the wiring).
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	digestpkg "github.com/opencontainers/go-digest"

	"github.com/botpack/botpack/internal/assets"
	"github.com/botpack/botpack/internal/audit"
	"github.com/botpack/botpack/internal/catalog"
	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/doctor"
	"github.com/botpack/botpack/internal/fetch"
	"github.com/botpack/botpack/internal/fsutil"
	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/mcpmerge"
	"github.com/botpack/botpack/internal/resolver"
	"github.com/botpack/botpack/internal/store"
	"github.com/botpack/botpack/internal/syncengine"
	"github.com/botpack/botpack/internal/targets"
	"github.com/botpack/botpack/internal/trust"
	"github.com/botpack/botpack/internal/vstore"
	"github.com/botpack/botpack/internal/workspace"
)

// Options controls workspace discovery and dependency injection for tests.
type Options struct {
	WorkspaceRoot string // --root, explicit override
	Profile       string // --profile, named global workspace
	HTTPClient    *http.Client
}

// Service aggregates every subsystem needed to run one workspace's
// operations, the way the teacher's internal/app.Service holds one field
// per subsystem built in New.
type Service struct {
	Root         string
	ManifestPath string
	LockfilePath string
	TrustPath    string
	StateDir     string
	StoreRoot    string
	AuditLogPath string

	Manifest manifest.Manifest

	// Fetcher is typed as the interface (not *fetch.Manager) so tests can
	// inject an in-memory fake, the same seam internal/resolver draws
	// around its own Fetcher dependency.
	Fetcher resolver.Fetcher
	Targets *targets.Registry
	Audit   *audit.Logger
	Doctor  *doctor.Service

	httpClient *http.Client
}

// New resolves the workspace root (spec §3 "Workspace root resolution")
// and wires every subsystem against it. A missing manifest is not an
// error here — `botpack init` is expected to create one — and Service.Manifest
// then holds manifest.DefaultManifest().
func New(opts Options) (*Service, error) {
	root, err := workspace.Resolve(workspace.ResolveOptions{
		ExplicitFlag: opts.WorkspaceRoot,
		ProfileName:  opts.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("APP_WORKSPACE: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	stateDir := workspace.StateDir(root)
	storeRoot := filepath.Join(stateDir, "store")
	manifestPath := workspace.ManifestPath(root)
	lockfilePath := filepath.Join(root, "botpack.lock")
	trustPath := filepath.Join(root, "trust.toml")

	m := manifest.DefaultManifest()
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		m, err = manifest.Load(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("APP_MANIFEST: %w", err)
		}
	}

	fetcher := fetch.NewManager(
		fetch.NewRegistryFetcher(client, filepath.Join(stateDir, "cache", "registry")),
		fetch.NewGitFetcher(filepath.Join(stateDir, "cache", "git")),
		&fetch.PathFetcher{BaseDir: root},
		fetch.NewTarballFetcher(client, filepath.Join(stateDir, "cache", "tarball")),
	)

	auditLogPath := filepath.Join(stateDir, "audit.log")
	svc := &Service{
		Root:         root,
		ManifestPath: manifestPath,
		LockfilePath: lockfilePath,
		TrustPath:    trustPath,
		StateDir:     stateDir,
		StoreRoot:    storeRoot,
		AuditLogPath: auditLogPath,
		Manifest:     m,
		Fetcher:      fetcher,
		Targets:      targets.NewRegistry(),
		Audit:        audit.New(auditLogPath),
		httpClient:   client,
	}
	svc.Doctor = &doctor.Service{
		ManifestPath: manifestPath,
		LockfilePath: lockfilePath,
		TrustPath:    trustPath,
		StoreRoot:    storeRoot,
	}

	for name, tc := range m.Targets {
		svc.Targets.Register(targets.Target{
			Name:        name,
			Root:        tc.Root,
			SkillsDir:   tc.Skills,
			CommandsDir: tc.Commands,
			AgentsDir:   tc.Agents,
			McpOutFile:  tc.McpOut,
		})
	}

	return svc, nil
}

// Init creates a new workspace manifest at the resolved root (spec §4.9
// operations table: `init`). Re-running Init on an existing manifest is a
// no-op success, matching the teacher's idempotent config.Ensure.
func (s *Service) Init(name string) error {
	if _, err := os.Stat(s.ManifestPath); err == nil {
		return nil
	}
	m := manifest.DefaultManifest()
	if name != "" {
		m.Workspace.Name = name
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("APP_INIT: %w", err)
	}
	if err := manifest.Save(s.ManifestPath, m); err != nil {
		return fmt.Errorf("APP_INIT: %w", err)
	}
	s.Manifest = m
	s.logEvent("init", "complete", "ok", "", nil)
	return nil
}

func (s *Service) reloadManifest() error {
	m, err := manifest.Load(s.ManifestPath)
	if err != nil {
		return err
	}
	s.Manifest = m
	return nil
}

// Add declares a new dependency in the manifest and saves it (spec §4.9
// `add`). It does not itself resolve or install; callers that want
// install-on-add behavior check Manifest.Sync.OnAdd and call Install.
func (s *Service) Add(name string, spec manifest.DependencySpec) error {
	if err := s.reloadManifest(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("APP_ADD: %w", err)
	}
	if s.Manifest.Dependencies == nil {
		s.Manifest.Dependencies = map[string]manifest.DependencySpec{}
	}
	s.Manifest.Dependencies[name] = spec
	if err := manifest.Save(s.ManifestPath, s.Manifest); err != nil {
		return fmt.Errorf("APP_ADD: %w", err)
	}
	s.logEvent("add", "complete", "ok", "", map[string]string{"package": name})
	return nil
}

// Remove deletes a dependency from the manifest (spec §4.9 `remove`). It
// leaves the lockfile and any materialized sync output untouched until
// the next install/sync, matching the teacher's config mutation pattern
// of separating declaration edits from installation side effects.
func (s *Service) Remove(name string) error {
	if err := s.reloadManifest(); err != nil {
		return fmt.Errorf("APP_REMOVE: %w", err)
	}
	if _, ok := s.Manifest.Dependencies[name]; !ok {
		return fmt.Errorf("APP_REMOVE: %q is not a declared dependency", name)
	}
	delete(s.Manifest.Dependencies, name)
	if err := manifest.Save(s.ManifestPath, s.Manifest); err != nil {
		return fmt.Errorf("APP_REMOVE: %w", err)
	}
	s.logEvent("remove", "complete", "ok", "", map[string]string{"package": name})
	return nil
}

// InstallOptions mirrors spec §4.1's install-time flags.
type InstallOptions struct {
	FrozenLockfile bool
	Offline        bool
	NoSync         bool
}

// InstallResult reports what Install produced.
type InstallResult struct {
	Graph  resolver.Graph
	Synced map[string]syncengine.TargetState
}

// Install resolves the dependency graph, populates the global store and
// each package's virtual-store link, writes the lockfile, then, when
// Manifest.Sync.OnInstall is set and NoSync is not, runs Sync for every
// configured target (spec §4.1 "Install").
func (s *Service) Install(ctx context.Context, opts InstallOptions) (InstallResult, error) {
	if err := s.reloadManifest(); err != nil {
		return InstallResult{}, fmt.Errorf("APP_INSTALL: %w", err)
	}
	prior, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return InstallResult{}, fmt.Errorf("APP_INSTALL: %w", err)
	}

	graph, err := resolver.Resolve(ctx, s.Fetcher, s.Manifest, prior, resolver.Options{
		FrozenLockfile: opts.FrozenLockfile,
		Offline:        opts.Offline,
	})
	if err != nil {
		s.logEvent("install", "resolve", "error", "", map[string]string{"error": err.Error()})
		return InstallResult{}, fmt.Errorf("APP_INSTALL: %w", err)
	}

	if err := s.populateStoreAndVstore(graph); err != nil {
		return InstallResult{}, fmt.Errorf("APP_INSTALL: %w", err)
	}

	lf := lockfile.Empty()
	lf.Dependencies = graph.Direct
	lf.Packages = graph.Packages
	if err := lockfile.Save(s.LockfilePath, lf); err != nil {
		return InstallResult{}, fmt.Errorf("APP_INSTALL: %w", err)
	}
	s.logEvent("install", "complete", "ok", "", map[string]string{"packages": fmt.Sprint(len(graph.Packages))})

	result := InstallResult{Graph: graph}
	if !opts.NoSync && s.Manifest.Sync.OnInstall {
		synced, err := s.Sync(ctx, SyncOptions{})
		if err != nil {
			return result, fmt.Errorf("APP_INSTALL: %w", err)
		}
		result.Synced = synced
	}
	return result, nil
}

// Update re-resolves the named dependencies (or every dependency, if
// names is empty) ignoring their current lockfile pin, then re-runs
// Install's store/lockfile/sync sequence (spec §4.9 `update`).
func (s *Service) Update(ctx context.Context, names []string, opts InstallOptions) (InstallResult, error) {
	if err := s.reloadManifest(); err != nil {
		return InstallResult{}, fmt.Errorf("APP_UPDATE: %w", err)
	}
	prior, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return InstallResult{}, fmt.Errorf("APP_UPDATE: %w", err)
	}
	targetsSet := map[string]bool{}
	for _, n := range names {
		targetsSet[n] = true
	}
	for name, version := range prior.Dependencies {
		if len(names) == 0 || targetsSet[name] {
			delete(prior.Dependencies, name)
			delete(prior.Packages, lockfile.Key(name, version))
		}
	}

	graph, err := resolver.Resolve(ctx, s.Fetcher, s.Manifest, prior, resolver.Options{
		FrozenLockfile: opts.FrozenLockfile,
		Offline:        opts.Offline,
	})
	if err != nil {
		return InstallResult{}, fmt.Errorf("APP_UPDATE: %w", err)
	}
	if err := s.populateStoreAndVstore(graph); err != nil {
		return InstallResult{}, fmt.Errorf("APP_UPDATE: %w", err)
	}
	lf := lockfile.Empty()
	lf.Dependencies = graph.Direct
	lf.Packages = graph.Packages
	if err := lockfile.Save(s.LockfilePath, lf); err != nil {
		return InstallResult{}, fmt.Errorf("APP_UPDATE: %w", err)
	}
	s.logEvent("update", "complete", "ok", "", map[string]string{"packages": fmt.Sprint(len(graph.Packages))})

	result := InstallResult{Graph: graph}
	if !opts.NoSync && s.Manifest.Sync.OnInstall {
		synced, err := s.Sync(ctx, SyncOptions{})
		if err != nil {
			return result, fmt.Errorf("APP_UPDATE: %w", err)
		}
		result.Synced = synced
	}
	return result, nil
}

// populateStoreAndVstore publishes every resolved package's fetched
// content into the global content-addressed store, then links it into
// this workspace's virtual store (spec §4.2 "Store population", §4.4
// "Virtual store materialization"). A registry/path/git/tarball fetch
// with no LocalDir (a test fake, or a package whose fetcher could not
// leave local content) is skipped — verify/doctor will flag the gap.
func (s *Service) populateStoreAndVstore(graph resolver.Graph) error {
	linkMode, err := vstore.ParseMode(s.Manifest.Sync.LinkMode)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(vstore.Root(s.StateDir), 0o755); err != nil {
		return err
	}
	for key, pkg := range graph.Packages {
		localDir := graph.LocalDirs[key]
		if localDir == "" {
			continue
		}
		d, err := digest.ParsePrefixed(pkg.Integrity)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		src := store.Source{Kind: pkg.Source.Kind, URL: pkg.Source.URL, Abs: pkg.Source.Abs}
		if err := store.Populate(s.StoreRoot, d, localDir, src); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		name, version := splitKey(key)
		dest := vstore.PackageDir(s.StateDir, name, version)
		if err := vstore.Link(s.StoreRoot, d, dest, linkMode); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func splitKey(key string) (name, version string) {
	i := strings.LastIndex(key, "@")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// SyncOptions controls one Sync pass.
type SyncOptions struct {
	TargetNames []string // empty = every configured target
	syncengine.ApplyOptions
}

// TrustBlockedError reports that sync found capability-bearing MCP
// servers with no recorded trust decision (spec §4.8: "Materializing a
// capability-bearing server without recorded trust in interactive mode
// prompts; in non-interactive mode, exits with trust-blocked"). This CLI
// has no interactive-prompt path, so every blocked server fails the run.
type TrustBlockedError struct {
	Blocked []mcpmerge.BlockedServer
}

func (e *TrustBlockedError) Error() string {
	return fmt.Sprintf("APP_SYNC: %d mcp server(s) blocked by trust gate: %s", len(e.Blocked), e.Blocked[0].Reason)
}

// syncStatePath is where the per-workspace sync state document is kept,
// keyed by target name (spec §3 "Sync state").
func (s *Service) syncStatePath() string {
	return filepath.Join(s.StateDir, "sync-state.json")
}

// Sync scans the workspace's own assets directory and every locked
// package's virtual-store directory, computes a plan per target, applies
// it, merges and trust-gates MCP servers, and persists the resulting
// per-target state (spec §4.7 "Sync engine", §4.8 "Trust gate").
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (map[string]syncengine.TargetState, error) {
	if err := s.reloadManifest(); err != nil {
		return nil, fmt.Errorf("APP_SYNC: %w", err)
	}
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_SYNC: %w", err)
	}
	tf, err := trust.Load(s.TrustPath)
	if err != nil {
		return nil, fmt.Errorf("APP_SYNC: %w", err)
	}

	packages, mcpPerPackage, err := s.scanPackages(lf)
	if err != nil {
		return nil, fmt.Errorf("APP_SYNC: %w", err)
	}

	merged, err := mcpmerge.Merge(mcpPerPackage)
	if err != nil {
		return nil, fmt.Errorf("APP_SYNC: %w", err)
	}
	gated := mcpmerge.Gate(merged, tf)
	if len(gated.Blocked) > 0 {
		return nil, &TrustBlockedError{Blocked: gated.Blocked}
	}
	mcpDoc := mcpmerge.BuildDocument(gated.Allowed)

	names := opts.TargetNames
	if len(names) == 0 {
		names = s.Targets.Names()
	}

	prevState := s.loadSyncState()
	results := map[string]syncengine.TargetState{}
	for _, name := range names {
		target, err := s.Targets.Get(name)
		if err != nil {
			return nil, fmt.Errorf("APP_SYNC: %w", err)
		}
		plan, err := syncengine.ComputePlan(syncengine.PlanInput{
			WorkspaceRoot: s.Root,
			Target:        target,
			Packages:      packages,
			Aliases:       s.Manifest.Aliases,
			AssetSourceDir: func(pkgKey string) string {
				if pkgKey == "" {
					return filepath.Join(s.Root, s.Manifest.Workspace.Dir)
				}
				name, version := splitKey(pkgKey)
				return vstore.PackageDir(s.StateDir, name, version)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("APP_SYNC: %w", err)
		}

		targetRoot := filepath.Join(s.Root, target.Root)
		prior := prevState.Targets[name]
		applyOpts := opts.ApplyOptions
		applyOpts.LinkMode, _ = vstore.ParseMode(s.Manifest.Sync.LinkMode)
		state, err := syncengine.Apply(targetRoot, plan, prior, applyOpts)
		if err != nil {
			s.logEvent("sync", "apply", "error", "", map[string]string{"target": name, "error": err.Error()})
			return nil, fmt.Errorf("APP_SYNC: target %s: %w", name, err)
		}
		if !opts.DryRun {
			if err := syncengine.CleanupStale(targetRoot); err != nil {
				return nil, fmt.Errorf("APP_SYNC: %w", err)
			}
		}
		if target.McpOutFile != "" && !opts.DryRun {
			if err := mcpmerge.WriteDocument(target.McpOutPath(s.Root), mcpDoc); err != nil {
				return nil, fmt.Errorf("APP_SYNC: target %s: %w", name, err)
			}
		}
		results[name] = state
	}

	if !opts.DryRun {
		prevState.Targets = results
		if err := s.saveSyncState(prevState); err != nil {
			return nil, fmt.Errorf("APP_SYNC: %w", err)
		}
	}

	if s.Manifest.Sync.Catalog && !opts.DryRun {
		if err := s.writeCatalog(packages); err != nil {
			return nil, fmt.Errorf("APP_SYNC: %w", err)
		}
	}

	s.logEvent("sync", "complete", "ok", "", map[string]string{"targets": fmt.Sprint(len(results))})
	return results, nil
}

// scanPackages walks the workspace's own assets directory plus every
// locked package's virtual-store directory, and separately parses each
// package's mcp/servers.toml (spec §4.6, §4.8).
func (s *Service) scanPackages(lf lockfile.Lockfile) ([]syncengine.PackageAssets, [][]mcpmerge.Server, error) {
	var packages []syncengine.PackageAssets
	var mcpPerPackage [][]mcpmerge.Server

	localDir := filepath.Join(s.Root, s.Manifest.Workspace.Dir)
	if _, err := os.Stat(localDir); err == nil {
		idx, err := assets.Scan(localDir, "")
		if err != nil {
			return nil, nil, err
		}
		packages = append(packages, syncengine.PackageAssets{PkgName: "", Index: idx})
	}

	keys := lockfile.SortedPackageKeys(lf)
	for _, key := range keys {
		pkg := lf.Packages[key]
		name, version := splitKey(key)
		dir := vstore.PackageDir(s.StateDir, name, version)
		if _, err := os.Stat(dir); err != nil {
			continue // not yet installed; doctor reports this separately
		}
		idx, err := assets.Scan(dir, key)
		if err != nil {
			return nil, nil, err
		}
		packages = append(packages, syncengine.PackageAssets{PkgKey: key, PkgName: name, Index: idx})

		serversToml := filepath.Join(dir, "mcp", "servers.toml")
		if _, err := os.Stat(serversToml); err == nil {
			servers, err := mcpmerge.ParseServersToml(serversToml, name, key, pkg.Integrity)
			if err != nil {
				return nil, nil, err
			}
			mcpPerPackage = append(mcpPerPackage, servers)
		}
	}
	return packages, mcpPerPackage, nil
}

func (s *Service) loadSyncState() syncengine.State {
	data, err := os.ReadFile(s.syncStatePath())
	if err != nil {
		return syncengine.State{Targets: map[string]syncengine.TargetState{}}
	}
	var st syncengine.State
	if err := json.Unmarshal(data, &st); err != nil || st.Targets == nil {
		return syncengine.State{Targets: map[string]syncengine.TargetState{}}
	}
	return st
}

func (s *Service) saveSyncState(st syncengine.State) error {
	blob, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.syncStatePath()), 0o755); err != nil {
		return err
	}
	return fsutil.AtomicWriteFsync(s.syncStatePath(), blob, 0o644)
}

func (s *Service) writeCatalog(packages []syncengine.PackageAssets) error {
	indices := make([]assets.Index, 0, len(packages))
	for _, p := range packages {
		indices = append(indices, p.Index)
	}
	doc := catalog.Build(indices)
	return catalog.Write(filepath.Join(s.StateDir, "catalog.json"), doc)
}

// Prefetch warms the global store for every locked package that is also
// declared in the manifest, without touching the lockfile or running sync
// (spec §4.9 `prefetch`). Locked packages with no manifest entry (transitive
// dependencies) are skipped.
func (s *Service) Prefetch(ctx context.Context) error {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return fmt.Errorf("APP_PREFETCH: %w", err)
	}
	graph := resolver.Graph{Direct: lf.Dependencies, Packages: lf.Packages, LocalDirs: map[string]string{}}
	for key, pkg := range lf.Packages {
		name, version := splitKey(key)
		d, err := digest.ParsePrefixed(pkg.Integrity)
		if err != nil {
			return fmt.Errorf("APP_PREFETCH: %s: %w", key, err)
		}
		if store.Has(s.StoreRoot, d) {
			continue
		}
		spec, ok := manifest.FindDependency(s.Manifest, name)
		if !ok {
			continue
		}
		cand, err := s.Fetcher.FetchVersion(ctx, name, resolver.VersionEntry{Version: version})
		if err != nil && spec.Kind != manifest.SpecSemver {
			cand, err = s.Fetcher.FetchPinned(ctx, name, spec)
		}
		if err != nil {
			return fmt.Errorf("APP_PREFETCH: %s: %w", key, err)
		}
		graph.LocalDirs[key] = cand.LocalDir
	}
	return s.populateStoreAndVstore(graph)
}

// VerifyFinding is one store-consistency problem found by Verify.
type VerifyFinding struct {
	Package string
	Message string
}

// Verify re-hashes every locked package's store object against its
// recorded integrity (spec §4.3 "Verify").
func (s *Service) Verify(ctx context.Context) ([]VerifyFinding, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_VERIFY: %w", err)
	}
	var findings []VerifyFinding
	for _, key := range lockfile.SortedPackageKeys(lf) {
		pkg := lf.Packages[key]
		d, err := digest.ParsePrefixed(pkg.Integrity)
		if err != nil {
			findings = append(findings, VerifyFinding{Package: key, Message: err.Error()})
			continue
		}
		if err := store.Verify(s.StoreRoot, d); err != nil {
			findings = append(findings, VerifyFinding{Package: key, Message: err.Error()})
		}
	}
	return findings, nil
}

// Prune removes every store object not referenced by the current
// lockfile (spec §4.3 "Prune").
func (s *Service) Prune(ctx context.Context) ([]string, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_PRUNE: %w", err)
	}
	keep := map[digestpkg.Digest]bool{}
	for _, pkg := range lf.Packages {
		d, err := digest.ParsePrefixed(pkg.Integrity)
		if err != nil {
			continue
		}
		keep[d] = true
	}
	removed, err := store.Prune(s.StoreRoot, keep)
	if err != nil {
		return nil, fmt.Errorf("APP_PRUNE: %w", err)
	}
	out := make([]string, 0, len(removed))
	for _, d := range removed {
		out = append(out, d.String())
	}
	sort.Strings(out)
	s.logEvent("prune", "complete", "ok", "", map[string]string{"removed": fmt.Sprint(len(out))})
	return out, nil
}

// Trust updates one package's trust record (spec §4.9 `trust`, §4.8).
func (s *Service) Trust(name, version string, allowExec, allowMcp *bool) error {
	tf, err := trust.Load(s.TrustPath)
	if err != nil {
		return fmt.Errorf("APP_TRUST: %w", err)
	}
	trust.SetPackageTrust(&tf, trust.PackageKey(name, version), allowExec, allowMcp)
	if err := trust.Save(s.TrustPath, tf); err != nil {
		return fmt.Errorf("APP_TRUST: %w", err)
	}
	s.logEvent("trust", "complete", "ok", "", map[string]string{"package": trust.PackageKey(name, version)})
	return nil
}

// List returns every resolved package key, sorted (spec §4.9 `list`).
func (s *Service) List() ([]string, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_LIST: %w", err)
	}
	return lockfile.SortedPackageKeys(lf), nil
}

// Tree returns the full dependency edge list (name@version -> its direct
// dependencies, each rendered as name@version), for `botpack tree`.
func (s *Service) Tree() (map[string][]string, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_TREE: %w", err)
	}
	out := map[string][]string{}
	for _, key := range lockfile.SortedPackageKeys(lf) {
		pkg := lf.Packages[key]
		depNames := make([]string, 0, len(pkg.Dependencies))
		for dn := range pkg.Dependencies {
			depNames = append(depNames, dn)
		}
		sort.Strings(depNames)
		edges := make([]string, 0, len(depNames))
		for _, dn := range depNames {
			edges = append(edges, lockfile.Key(dn, pkg.Dependencies[dn]))
		}
		out[key] = edges
	}
	return out, nil
}

// Info returns the resolved lockfile record for one package (spec §4.9
// `info`).
func (s *Service) Info(name, version string) (lockfile.Package, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return lockfile.Package{}, fmt.Errorf("APP_INFO: %w", err)
	}
	if version == "" {
		version = lf.Dependencies[name]
	}
	pkg, ok := lf.Packages[lockfile.Key(name, version)]
	if !ok {
		return lockfile.Package{}, fmt.Errorf("APP_INFO: %s@%s not found in lockfile", name, version)
	}
	return pkg, nil
}

// Why walks the lockfile's dependency edges to find every package with a
// direct edge to target, plus "(direct dependency)" when the manifest
// declares it, for `botpack why`. Transitive dependents are not listed.
func (s *Service) Why(target string) ([]string, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_WHY: %w", err)
	}
	var chains []string
	for key, pkg := range lf.Packages {
		for dn := range pkg.Dependencies {
			if dn == target {
				chains = append(chains, key)
			}
		}
	}
	for name := range lf.Dependencies {
		if name == target {
			chains = append(chains, "(direct dependency)")
		}
	}
	sort.Strings(chains)
	return chains, nil
}

// Catalog emits the current metadata index without running a sync pass
// (spec §4.9 `catalog`).
func (s *Service) Catalog(ctx context.Context) (catalog.Document, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("APP_CATALOG: %w", err)
	}
	packages, _, err := s.scanPackages(lf)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("APP_CATALOG: %w", err)
	}
	indices := make([]assets.Index, 0, len(packages))
	for _, p := range packages {
		indices = append(indices, p.Index)
	}
	return catalog.Build(indices), nil
}

// RunDoctor executes every workspace health check (spec §4.9 `doctor`).
func (s *Service) RunDoctor() doctor.Report {
	return s.Doctor.Run()
}

// AuditEvents returns every recorded event, oldest first (spec §4.9 `audit
// --log`).
func (s *Service) AuditEvents() ([]audit.Event, error) {
	return audit.ReadEvents(s.AuditLogPath)
}

// TrustAuditEntry reports one locked package's capability exposure and
// its current trust decision.
type TrustAuditEntry struct {
	Package      string          `json:"package"`
	Capabilities map[string]bool `json:"capabilities"`
	Trusted      bool            `json:"trusted"`
	Reason       string          `json:"reason,omitempty"`
}

// AuditTrust re-runs the capability/trust gate over every locked,
// capability-bearing package without materializing anything, reporting
// its current trust decision (spec §4.9 `audit`, grounded on trust.go's
// CheckPackage exposed as a read-only report rather than only a sync
// side effect).
func (s *Service) AuditTrust() ([]TrustAuditEntry, error) {
	lf, err := lockfile.Load(s.LockfilePath)
	if err != nil {
		return nil, fmt.Errorf("APP_AUDIT: %w", err)
	}
	tf, err := trust.Load(s.TrustPath)
	if err != nil {
		return nil, fmt.Errorf("APP_AUDIT: %w", err)
	}

	var out []TrustAuditEntry
	for _, key := range lockfile.SortedPackageKeys(lf) {
		pkg := lf.Packages[key]
		need := trust.Need{Exec: pkg.Capabilities["exec"], Mcp: pkg.Capabilities["mcp"]}
		if !need.Exec && !need.Mcp {
			continue // no exec/mcp capability declared; nothing for the trust gate to decide
		}
		decision := trust.CheckPackage(tf, key, pkg.Integrity, need)
		out = append(out, TrustAuditEntry{
			Package:      key,
			Capabilities: pkg.Capabilities,
			Trusted:      decision.Allowed,
			Reason:       decision.Reason,
		})
	}
	return out, nil
}

// Migrate brings a pre-existing asset directory (with no manifest yet)
// under botpack management: it writes a default manifest if one is
// missing and leaves existing content in place for the next `install`/
// `sync` to pick up. original_source/botpack has no migration tool of
// its own; this is the supplemented operation spec.md's distillation
// dropped, kept intentionally minimal since there is no legacy schema
// left in this repo to translate from (internal/config, the teacher's
// old ~/.skillpm/config.toml reader, was dropped — see DESIGN.md).
func (s *Service) Migrate() error {
	return s.Init("")
}

func (s *Service) logEvent(operation, phase, status, code string, fields map[string]string) {
	_ = s.Audit.Log(audit.Event{Operation: operation, Phase: phase, Status: status, Code: code, Fields: fields})
}

