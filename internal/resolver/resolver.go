// Package resolver implements the dependency graph resolution described in
// spec §4.1 "Resolve": a breadth-first walk of the manifest's direct
// dependencies, closed under each fetched package's own `dependencies`
// table, producing one ResolvedPackage per distinct name@version pair.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
)

// Fetcher is the subset of internal/fetch the resolver needs: given a
// dependency spec, list available versions (semver only) or resolve a
// single pinned source directly to a candidate. Kept as an interface so
// the resolver can be tested without real network/git access, the same
// seam the teacher drew around internal/source.Manager.
type Fetcher interface {
	// ListVersions returns every published version for a semver-ranged
	// dependency, as found under the registry's <name>/versions.json
	// (original_source/botpack/registry.py: resolve_semver_dependency).
	ListVersions(ctx context.Context, name string) ([]VersionEntry, error)

	// FetchPinned resolves a non-semver dependency (git/path/url) directly
	// to a single candidate, including its declared sub-dependencies.
	FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (Candidate, error)

	// FetchVersion fetches one specific registry version by name+version,
	// returning its candidate including declared sub-dependencies.
	FetchVersion(ctx context.Context, name string, v VersionEntry) (Candidate, error)
}

// VersionEntry is one entry of a registry's versions.json.
type VersionEntry struct {
	Version   string
	SourceURL string
}

// Candidate is a single fetched package: its resolved source/identity,
// content integrity, capabilities, and its own direct dependencies, which
// feed the next BFS frontier.
type Candidate struct {
	Source lockfile.Source
	// LocalDir is where the fetcher left the fetched tree on disk, so the
	// caller can populate the store from it without re-fetching. Empty for
	// test fakes that never touch a filesystem.
	LocalDir     string
	Resolved     lockfile.Resolved
	Integrity    string
	Capabilities map[string]bool
	Dependencies map[string]manifest.DependencySpec
}

// Options controls resolution behavior (spec §4.1 edge cases).
type Options struct {
	// FrozenLockfile turns a semver dependency whose resolved version would
	// differ from the lockfile into a resolution error instead of silently
	// re-resolving (spec §4.1 "--frozen-lockfile"). git, path and url
	// dependencies are fetched as usual and are not compared against the
	// lockfile.
	FrozenLockfile bool
	// Offline restricts semver dependencies to versions already in the
	// lockfile (the direct pin, or for a transitive dependency the highest
	// locked version satisfying its range); a semver dependency with no
	// such version fails without listing the registry. git, path and url
	// dependencies are fetched as usual.
	Offline bool
}

// Graph is the resolution result: every distinct name@version reached from
// the manifest's direct dependencies, plus the direct-dependency edges
// recorded at the top level of the lockfile.
type Graph struct {
	Direct   map[string]string // name -> resolved version, for lockfile.Dependencies
	Packages map[string]lockfile.Package
	// LocalDirs carries each package's on-disk fetched location, keyed the
	// same as Packages, so the caller can populate the store without a
	// second fetch. Not part of the lockfile itself (spec §3 "Lockfile"
	// has no local-path field — paths aren't portable across machines).
	LocalDirs map[string]string
}

type frontierItem struct {
	name string
	spec manifest.DependencySpec
}

// Resolve performs the BFS of spec §4.1 starting from the manifest's direct
// dependencies, reusing prior lockfile pins where they still satisfy the
// manifest (spec §4.1 "Lockfile reuse").
func Resolve(ctx context.Context, f Fetcher, m manifest.Manifest, prior lockfile.Lockfile, opts Options) (Graph, error) {
	g := Graph{
		Direct:    map[string]string{},
		Packages:  map[string]lockfile.Package{},
		LocalDirs: map[string]string{},
	}

	visited := map[string]bool{} // "name@version" already expanded
	seenContent := map[string]string{}
	childNames := map[string][]string{} // key -> its declared dependency names, in order

	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	queue := make([]frontierItem, 0, len(names))
	for _, name := range names {
		queue = append(queue, frontierItem{name: name, spec: m.Dependencies[name]})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		version, cand, err := resolveOne(ctx, f, item.name, item.spec, prior, opts)
		if err != nil {
			return Graph{}, err
		}

		key := lockfile.Key(item.name, version)

		if isTopLevel(m, item.name) {
			g.Direct[item.name] = version
		}

		if prevDigest, ok := seenContent[key]; ok {
			if prevDigest != cand.Integrity {
				return Graph{}, fmt.Errorf("RES_COLLISION: %s resolved to two different contents (%s vs %s)", key, prevDigest, cand.Integrity)
			}
			continue // already expanded this exact package, skip re-queueing children
		}
		seenContent[key] = cand.Integrity

		if visited[key] {
			continue
		}
		visited[key] = true

		depNames := make([]string, 0, len(cand.Dependencies))
		for dn := range cand.Dependencies {
			depNames = append(depNames, dn)
		}
		sort.Strings(depNames)
		childNames[key] = depNames

		for _, dn := range depNames {
			queue = append(queue, frontierItem{name: dn, spec: cand.Dependencies[dn]})
		}

		g.LocalDirs[key] = cand.LocalDir

		g.Packages[key] = lockfile.Package{
			Source:       cand.Source,
			Resolved:     cand.Resolved,
			Integrity:    cand.Integrity,
			Dependencies: map[string]string{},
			Capabilities: cand.Capabilities,
		}
	}

	// A package's dependency edges can't be stamped with concrete versions
	// until its children are dequeued, so resolve edges in a second pass
	// over the now-complete package set.
	for key, names := range childNames {
		pkg := g.Packages[key]
		for _, depName := range names {
			if v, ok := versionFor(g.Packages, depName); ok {
				pkg.Dependencies[depName] = v
			}
		}
		g.Packages[key] = pkg
	}

	return g, nil
}

func versionFor(pkgs map[string]lockfile.Package, name string) (string, bool) {
	prefix := name + "@"
	for key := range pkgs {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix), true
		}
	}
	return "", false
}

func isTopLevel(m manifest.Manifest, name string) bool {
	_, ok := m.Dependencies[name]
	return ok
}

// resolveOne resolves a single dependency spec to a concrete version and
// fetched candidate, applying lockfile reuse and frozen/offline policy.
func resolveOne(ctx context.Context, f Fetcher, name string, spec manifest.DependencySpec, prior lockfile.Lockfile, opts Options) (string, Candidate, error) {
	switch spec.Kind {
	case manifest.SpecPath, manifest.SpecGit, manifest.SpecURL:
		cand, err := f.FetchPinned(ctx, name, spec)
		if err != nil {
			return "", Candidate{}, err
		}
		return cand.Resolved.Identity, cand, nil

	case manifest.SpecSemver:
		return resolveSemver(ctx, f, name, spec, prior, opts)

	default:
		return "", Candidate{}, fmt.Errorf("RES_SPEC: dependency %q has unknown spec kind", name)
	}
}

// resolveSemver implements spec §4.1's semver branch and its "Lockfile
// reuse" rule: a direct dependency whose spec is still satisfied by the
// lockfile's pin reuses that pin outright, with no registry listing at
// all — not just under --offline/--frozen-lockfile. This is what gives
// spec §6 "install: resolve from lockfile if present" its distinct
// behavior from "update: re-resolve and rewrite lock": `Update` strips
// the relevant pins from prior before calling Resolve, so the reuse
// check below simply has nothing to reuse and falls through to
// pickHighestSatisfying the same as it always did.
func resolveSemver(ctx context.Context, f Fetcher, name string, spec manifest.DependencySpec, prior lockfile.Lockfile, opts Options) (string, Candidate, error) {
	rangeStr := spec.Range

	pinned, hadPin := lockedVersion(prior, name)
	if !hadPin && (opts.Offline || opts.FrozenLockfile) {
		// A transitive dependency has no entry in the direct table; reuse
		// the highest version of it the lockfile already holds.
		for key := range prior.Packages {
			v := strings.TrimPrefix(key, name+"@")
			if v == key || !satisfies(v, rangeStr) {
				continue
			}
			if !hadPin || semver.Compare(canonical(v), canonical(pinned)) > 0 {
				pinned, hadPin = v, true
			}
		}
	}
	if hadPin && satisfies(pinned, rangeStr) {
		cand, err := f.FetchVersion(ctx, name, VersionEntry{Version: pinned})
		if err != nil {
			return "", Candidate{}, err
		}
		return pinned, cand, nil
	}
	if opts.Offline {
		return "", Candidate{}, fmt.Errorf("RES_OFFLINE: %s: no cached lock entry satisfies %q offline", name, rangeStr)
	}

	versions, err := f.ListVersions(ctx, name)
	if err != nil {
		return "", Candidate{}, fmt.Errorf("RES_FETCH: %s: %w", name, err)
	}
	best, ok := pickHighestSatisfying(versions, rangeStr)
	if !ok {
		return "", Candidate{}, fmt.Errorf("RES_NO_MATCH: no version of %q satisfies range %q", name, rangeStr)
	}

	if opts.FrozenLockfile {
		if !hadPin || pinned != best.Version {
			return "", Candidate{}, fmt.Errorf("RES_FROZEN: %s would change (locked %s, resolved %q) but --frozen-lockfile is set", name, pinnedOrNone(pinned, hadPin), best.Version)
		}
	}

	cand, err := f.FetchVersion(ctx, name, best)
	if err != nil {
		return "", Candidate{}, err
	}
	return best.Version, cand, nil
}

func pinnedOrNone(v string, ok bool) string {
	if !ok {
		return "(none)"
	}
	return v
}

func lockedVersion(lf lockfile.Lockfile, name string) (string, bool) {
	v, ok := lf.Dependencies[name]
	return v, ok
}

// satisfies reports whether version v falls within the caret/tilde/exact/*
// range expressed by rangeStr, per spec §4.1 "Semver range syntax".
func satisfies(v, rangeStr string) bool {
	lo, hi, ok := rangeBounds(rangeStr)
	if !ok {
		return false
	}
	cv := canonical(v)
	if !semver.IsValid(cv) {
		return false
	}
	if semver.Compare(cv, lo) < 0 {
		return false
	}
	if hi != "" && semver.Compare(cv, hi) >= 0 {
		return false
	}
	return true
}

// pickHighestSatisfying returns the highest version satisfying rangeStr,
// tie-breaking equal versions by lexicographically smaller source URL so
// resolution is deterministic even across duplicate registry entries.
func pickHighestSatisfying(versions []VersionEntry, rangeStr string) (VersionEntry, bool) {
	var best VersionEntry
	found := false
	for _, v := range versions {
		if !semver.IsValid(canonical(v.Version)) {
			continue
		}
		if !satisfies(v.Version, rangeStr) {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		cmp := semver.Compare(canonical(v.Version), canonical(best.Version))
		if cmp > 0 || (cmp == 0 && v.SourceURL < best.SourceURL) {
			best = v
		}
	}
	return best, found
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// rangeBounds parses the spec's caret (^1.2.3), tilde (~1.2.3), exact, and
// any-version (*) range forms into a [lo, hi) half-open interval in
// canonical "vX.Y.Z" form; hi is "" (no upper bound) for *.
func rangeBounds(rangeStr string) (lo, hi string, ok bool) {
	rangeStr = strings.TrimSpace(rangeStr)
	switch {
	case rangeStr == "*":
		return "v0.0.0", "", true
	case strings.HasPrefix(rangeStr, "^"):
		base := canonical(strings.TrimPrefix(rangeStr, "^"))
		if !semver.IsValid(base) {
			return "", "", false
		}
		return base, caretUpper(base), true
	case strings.HasPrefix(rangeStr, "~"):
		base := canonical(strings.TrimPrefix(rangeStr, "~"))
		if !semver.IsValid(base) {
			return "", "", false
		}
		return base, tildeUpper(base), true
	default:
		base := canonical(rangeStr)
		if !semver.IsValid(base) {
			return "", "", false
		}
		return base, nextPatch(base), true
	}
}

// caretUpper returns the exclusive upper bound for a caret range. ^1.2.3
// allows up to (not including) the next major; ^0.2.3 allows up to the next
// minor; ^0.0.3 allows only patch bumps (original_source/botpack/
// resolver.py:_caret_upper).
func caretUpper(base string) string {
	major := semver.Major(base)
	if major == "v0" {
		if semver.MajorMinor(base) == "v0.0" {
			return nextPatch(base)
		}
		return bumpMinor(semver.MajorMinor(base))
	}
	return bumpMajor(major)
}

func tildeUpper(base string) string {
	return bumpMinor(semver.MajorMinor(base))
}

func bumpMajor(major string) string {
	n := parseNum(strings.TrimPrefix(major, "v"))
	return fmt.Sprintf("v%d.0.0", n+1)
}

func bumpMinor(majorMinor string) string {
	parts := strings.SplitN(strings.TrimPrefix(majorMinor, "v"), ".", 2)
	maj := parseNum(parts[0])
	min := 0
	if len(parts) == 2 {
		min = parseNum(parts[1])
	}
	return fmt.Sprintf("v%d.%d.0", maj, min+1)
}

func nextPatch(base string) string {
	full := strings.TrimPrefix(base, "v")
	parts := strings.SplitN(full, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	patch := parseNum(strings.SplitN(parts[2], "-", 2)[0])
	return fmt.Sprintf("v%s.%s.%d", parts[0], parts[1], patch+1)
}

func parseNum(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
