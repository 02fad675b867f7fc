package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/resolver"
)

// DefaultRegistryURL is the public botpack registry, overridable via the
// BOTPACK_REGISTRY_URL environment variable (original_source/botpack/
// registry.py: DEFAULT_REGISTRY_URL, registry_base_url).
const DefaultRegistryURL = "https://registry.botpack.dev"

const registryURLEnvVar = "BOTPACK_REGISTRY_URL"

// RegistryBaseURL resolves the active registry base, following the
// teacher's environment-override pattern used for clawhub's well-known
// discovery (internal/source/clawhub_provider.go), but simplified: the
// Python original resolves this purely from an env var with no discovery
// handshake, and distilled spec §4.1 names no discovery protocol, so no
// well-known/.discover step is carried over here.
func RegistryBaseURL() string {
	if v := strings.TrimSpace(os.Getenv(registryURLEnvVar)); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return DefaultRegistryURL
}

// versionsIndex mirrors the registry's <name>/versions.json document.
type versionsIndex struct {
	Versions []versionsIndexEntry `json:"versions"`
}

type versionsIndexEntry struct {
	Version      string            `json:"version"`
	Source       string            `json:"source"`
	Integrity    string            `json:"integrity"`
	Dependencies map[string]any    `json:"dependencies"`
	Capabilities map[string]bool   `json:"capabilities"`
}

// RegistryFetcher implements resolver.Fetcher against an HTTP registry
// serving static versions.json documents per package (original_source/
// botpack/registry.py: resolve_semver_dependency).
type RegistryFetcher struct {
	Client    *http.Client
	BaseURL   string
	CacheRoot string
}

func NewRegistryFetcher(client *http.Client, cacheRoot string) *RegistryFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RegistryFetcher{Client: client, BaseURL: RegistryBaseURL(), CacheRoot: cacheRoot}
}

func (f *RegistryFetcher) versionsIndexURL(name string) string {
	base := strings.TrimSuffix(f.BaseURL, "/")
	return base + "/" + path.Join(name, "versions.json")
}

func (f *RegistryFetcher) fetchIndex(ctx context.Context, name string) (versionsIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.versionsIndexURL(name), nil)
	if err != nil {
		return versionsIndex{}, fmt.Errorf("REG_REQUEST: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return versionsIndex{}, fmt.Errorf("REG_FETCH: %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return versionsIndex{}, fmt.Errorf("REG_FETCH: %s: registry returned status %d", name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return versionsIndex{}, fmt.Errorf("REG_FETCH: %s: %w", name, err)
	}
	var idx versionsIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return versionsIndex{}, fmt.Errorf("REG_PARSE: %s: %w", name, err)
	}
	return idx, nil
}

func (f *RegistryFetcher) ListVersions(ctx context.Context, name string) ([]resolver.VersionEntry, error) {
	idx, err := f.fetchIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]resolver.VersionEntry, 0, len(idx.Versions))
	for _, v := range idx.Versions {
		out = append(out, resolver.VersionEntry{Version: v.Version, SourceURL: v.Source})
	}
	return out, nil
}

func (f *RegistryFetcher) FetchVersion(ctx context.Context, name string, v resolver.VersionEntry) (resolver.Candidate, error) {
	idx, err := f.fetchIndex(ctx, name)
	if err != nil {
		return resolver.Candidate{}, err
	}
	for _, entry := range idx.Versions {
		if entry.Version != v.Version {
			continue
		}
		return f.entryToCandidate(ctx, name, entry)
	}
	return resolver.Candidate{}, fmt.Errorf("REG_NOT_FOUND: %s@%s not present in versions index", name, v.Version)
}

// FetchPinned is unreachable for registry-backed (semver) dependencies;
// the resolver routes git/path/url specs to the git/path/tarball fetchers
// instead (see resolver.resolveOne).
func (f *RegistryFetcher) FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (resolver.Candidate, error) {
	return resolver.Candidate{}, fmt.Errorf("REG_UNSUPPORTED: %q is not a registry dependency", name)
}

// entryToCandidate downloads and verifies a registry version's tarball
// (cached by name+integrity, the same layout as TarballFetcher), then
// builds the resulting Candidate.
func (f *RegistryFetcher) entryToCandidate(ctx context.Context, name string, entry versionsIndexEntry) (resolver.Candidate, error) {
	if entry.Integrity == "" {
		return resolver.Candidate{}, fmt.Errorf("REG_SCHEMA: registry entry for %s missing integrity", entry.Version)
	}
	want, err := digest.ParsePrefixed(entry.Integrity)
	if err != nil {
		return resolver.Candidate{}, fmt.Errorf("REG_SCHEMA: %w", err)
	}

	destDir := filepath.Join(f.CacheRoot, sanitizeName(name)+"-"+want.Encoded()[:16])
	if info, statErr := os.Stat(destDir); statErr != nil || !info.IsDir() {
		if err := downloadAndExtract(ctx, f.Client, entry.Source, destDir); err != nil {
			return resolver.Candidate{}, fmt.Errorf("REG_DOWNLOAD: %s@%s: %w", name, entry.Version, err)
		}
	}
	if err := digest.Verify(destDir, want); err != nil {
		return resolver.Candidate{}, fmt.Errorf("REG_DOWNLOAD: %s@%s: %w", name, entry.Version, err)
	}

	deps := make(map[string]manifest.DependencySpec, len(entry.Dependencies))
	names := make([]string, 0, len(entry.Dependencies))
	for n := range entry.Dependencies {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		spec, err := coerceRegistryDependency(n, entry.Dependencies[n])
		if err != nil {
			return resolver.Candidate{}, err
		}
		deps[n] = spec
	}
	return resolver.Candidate{
		Source:       lockfile.Source{Kind: "registry", URL: entry.Source},
		LocalDir:     destDir,
		Resolved:     lockfile.Resolved{Identity: entry.Version},
		Integrity:    entry.Integrity,
		Capabilities: entry.Capabilities,
		Dependencies: deps,
	}, nil
}

// coerceRegistryDependency reuses the same heterogeneous string|table shape
// as the project manifest's dependency table (spec §3 "Manifest"), since a
// registry entry's own dependency list has identical shape.
func coerceRegistryDependency(name string, raw any) (manifest.DependencySpec, error) {
	switch v := raw.(type) {
	case string:
		return manifest.DependencySpec{Kind: manifest.SpecSemver, Range: v}, nil
	case map[string]any:
		if git, ok := v["git"].(string); ok {
			rev, _ := v["rev"].(string)
			return manifest.DependencySpec{Kind: manifest.SpecGit, Git: git, Rev: rev}, nil
		}
		if u, ok := v["url"].(string); ok {
			integrity, _ := v["integrity"].(string)
			return manifest.DependencySpec{Kind: manifest.SpecURL, URL: u, Integrity: integrity}, nil
		}
		return manifest.DependencySpec{}, fmt.Errorf("REG_SCHEMA: dependency %q: unrecognized table shape", name)
	default:
		return manifest.DependencySpec{}, fmt.Errorf("REG_SCHEMA: dependency %q: unexpected type %T", name, raw)
	}
}
