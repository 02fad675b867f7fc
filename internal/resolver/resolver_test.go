package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
)

// fakeFetcher is an in-memory Fetcher for exercising BFS resolution without
// touching git or the network, mirroring how the teacher fakes
// source.Manager in its own tests.
type fakeFetcher struct {
	versions map[string][]VersionEntry
	deps     map[string]map[string]manifest.DependencySpec // "name@version" -> deps
	digest   map[string]string                              // "name@version" -> integrity override
	pinned   map[string]Candidate                            // name -> candidate (path/git/url deps)
	calls    []string
}

func (f *fakeFetcher) ListVersions(ctx context.Context, name string) ([]VersionEntry, error) {
	f.calls = append(f.calls, "list:"+name)
	v, ok := f.versions[name]
	if !ok {
		return nil, fmt.Errorf("no such package %q", name)
	}
	return v, nil
}

func (f *fakeFetcher) FetchVersion(ctx context.Context, name string, v VersionEntry) (Candidate, error) {
	key := lockfile.Key(name, v.Version)
	f.calls = append(f.calls, "fetch:"+key)
	digest := f.digest[key]
	if digest == "" {
		digest = "sha256:" + key
	}
	return Candidate{
		Source:       lockfile.Source{Kind: "registry", URL: v.SourceURL},
		Resolved:     lockfile.Resolved{Identity: v.Version},
		Integrity:    digest,
		Capabilities: map[string]bool{},
		Dependencies: f.deps[key],
	}, nil
}

func (f *fakeFetcher) FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (Candidate, error) {
	f.calls = append(f.calls, "pin:"+name)
	cand, ok := f.pinned[name]
	if !ok {
		return Candidate{}, fmt.Errorf("no pinned candidate for %q", name)
	}
	return cand, nil
}

func mustManifest(deps map[string]manifest.DependencySpec) manifest.Manifest {
	m := manifest.DefaultManifest()
	m.Dependencies = deps
	return m
}

func TestResolveSimpleDirectDependency(t *testing.T) {
	f := &fakeFetcher{
		versions: map[string][]VersionEntry{
			"acme/reviewer": {{Version: "1.0.0", SourceURL: "https://registry/acme/reviewer"}, {Version: "1.2.0", SourceURL: "https://registry/acme/reviewer"}},
		},
		deps: map[string]map[string]manifest.DependencySpec{},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/reviewer": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	g, err := Resolve(context.Background(), f, m, lockfile.Empty(), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Direct["acme/reviewer"] != "1.2.0" {
		t.Fatalf("expected highest satisfying version 1.2.0, got %q", g.Direct["acme/reviewer"])
	}
	if _, ok := g.Packages["acme/reviewer@1.2.0"]; !ok {
		t.Fatal("expected package entry for acme/reviewer@1.2.0")
	}
}

func TestResolveTransitiveClosure(t *testing.T) {
	f := &fakeFetcher{
		versions: map[string][]VersionEntry{
			"acme/top":    {{Version: "1.0.0", SourceURL: "u1"}},
			"acme/nested": {{Version: "2.0.0", SourceURL: "u2"}},
		},
		deps: map[string]map[string]manifest.DependencySpec{
			"acme/top@1.0.0": {
				"acme/nested": {Kind: manifest.SpecSemver, Range: "^2.0.0"},
			},
		},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/top": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	g, err := Resolve(context.Background(), f, m, lockfile.Empty(), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := g.Packages["acme/nested@2.0.0"]; !ok {
		t.Fatal("expected transitive dependency to be resolved")
	}
	top := g.Packages["acme/top@1.0.0"]
	if top.Dependencies["acme/nested"] != "2.0.0" {
		t.Fatalf("expected top's dependency edge to record resolved version, got %q", top.Dependencies["acme/nested"])
	}
}

func TestResolveFrozenLockfileRejectsChange(t *testing.T) {
	f := &fakeFetcher{
		versions: map[string][]VersionEntry{
			"acme/reviewer": {{Version: "1.0.0", SourceURL: "u"}, {Version: "1.1.0", SourceURL: "u"}},
		},
		deps: map[string]map[string]manifest.DependencySpec{},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/reviewer": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	prior := lockfile.Empty()
	prior.Dependencies["acme/reviewer"] = "0.9.0"

	_, err := Resolve(context.Background(), f, m, prior, Options{FrozenLockfile: true})
	if err == nil {
		t.Fatal("expected frozen-lockfile resolution to fail when the locked pin no longer satisfies the range")
	}
}

func TestResolveFrozenLockfileAllowsUnchangedPin(t *testing.T) {
	f := &fakeFetcher{
		versions: map[string][]VersionEntry{
			"acme/reviewer": {{Version: "1.0.0", SourceURL: "u"}},
		},
		deps: map[string]map[string]manifest.DependencySpec{},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/reviewer": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	prior := lockfile.Empty()
	prior.Dependencies["acme/reviewer"] = "1.0.0"

	g, err := Resolve(context.Background(), f, m, prior, Options{FrozenLockfile: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Direct["acme/reviewer"] != "1.0.0" {
		t.Fatalf("expected pin reused, got %q", g.Direct["acme/reviewer"])
	}
}

func TestResolveOfflineUsesLockedVersionOnly(t *testing.T) {
	f := &fakeFetcher{
		versions: map[string][]VersionEntry{},
		deps:     map[string]map[string]manifest.DependencySpec{},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/reviewer": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	prior := lockfile.Empty()
	prior.Dependencies["acme/reviewer"] = "1.0.0"

	g, err := Resolve(context.Background(), f, m, prior, Options{Offline: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Direct["acme/reviewer"] != "1.0.0" {
		t.Fatalf("expected offline resolution to reuse the lock, got %q", g.Direct["acme/reviewer"])
	}
	for _, c := range f.calls {
		if c == "list:acme/reviewer" {
			t.Fatal("offline resolution must not hit the registry listing")
		}
	}
}

func TestResolveOfflineFailsWithoutLockEntry(t *testing.T) {
	f := &fakeFetcher{versions: map[string][]VersionEntry{}, deps: map[string]map[string]manifest.DependencySpec{}}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/reviewer": {Kind: manifest.SpecSemver, Range: "^1.0.0"},
	})
	_, err := Resolve(context.Background(), f, m, lockfile.Empty(), Options{Offline: true})
	if err == nil {
		t.Fatal("expected offline resolution without a lock entry to fail")
	}
}

func TestPinnedDependencyUsesDigestAsIdentity(t *testing.T) {
	f := &fakeFetcher{
		pinned: map[string]Candidate{
			"acme/local": {
				Source:       lockfile.Source{Kind: "path", Abs: "/tmp/acme-local"},
				Resolved:     lockfile.Resolved{Identity: "sha256:deadbeef"},
				Integrity:    "sha256:deadbeef",
				Capabilities: map[string]bool{},
				Dependencies: map[string]manifest.DependencySpec{},
			},
		},
	}
	m := mustManifest(map[string]manifest.DependencySpec{
		"acme/local": {Kind: manifest.SpecPath, Path: "../acme-local"},
	})
	g, err := Resolve(context.Background(), f, m, lockfile.Empty(), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if g.Direct["acme/local"] != "sha256:deadbeef" {
		t.Fatalf("expected path dependency identity to be its digest, got %q", g.Direct["acme/local"])
	}
}

func TestSatisfiesCaretTildeExact(t *testing.T) {
	cases := []struct {
		version, rng string
		want         bool
	}{
		{"1.2.3", "^1.2.0", true},
		{"2.0.0", "^1.2.0", false},
		{"1.9.9", "^1.2.0", true},
		{"1.2.5", "~1.2.0", true},
		{"1.3.0", "~1.2.0", false},
		{"1.2.3", "1.2.3", true},
		{"1.2.4", "1.2.3", false},
		{"0.2.3", "^0.2.0", true},
		{"0.3.0", "^0.2.0", false},
		{"0.0.3", "^0.0.3", true},
		{"0.0.4", "^0.0.3", false},
	}
	for _, c := range cases {
		got := satisfies(c.version, c.rng)
		if got != c.want {
			t.Errorf("satisfies(%q, %q) = %v, want %v", c.version, c.rng, got, c.want)
		}
	}
}

func TestPickHighestSatisfyingTieBreaksBySourceURL(t *testing.T) {
	versions := []VersionEntry{
		{Version: "1.0.0", SourceURL: "https://mirror-b"},
		{Version: "1.0.0", SourceURL: "https://mirror-a"},
	}
	best, ok := pickHighestSatisfying(versions, "^1.0.0")
	if !ok {
		t.Fatal("expected a match")
	}
	if best.SourceURL != "https://mirror-a" {
		t.Fatalf("expected tie-break to prefer lexicographically smaller source URL, got %q", best.SourceURL)
	}
}
