package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/resolver"
)

// TarballFetcher resolves url+integrity dependencies: download a gzipped
// tarball, verify it against the manifest's declared integrity before
// extracting (spec §4.1 "Tarball source" requires integrity up front,
// unlike git/path, since a bare URL carries no other trust signal).
type TarballFetcher struct {
	Client    *http.Client
	CacheRoot string
}

func NewTarballFetcher(client *http.Client, cacheRoot string) *TarballFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &TarballFetcher{Client: client, CacheRoot: cacheRoot}
}

func (t *TarballFetcher) ListVersions(ctx context.Context, name string) ([]resolver.VersionEntry, error) {
	return nil, fmt.Errorf("FETCH_TARBALL: %q is a url dependency, not semver-ranged", name)
}

func (t *TarballFetcher) FetchVersion(ctx context.Context, name string, v resolver.VersionEntry) (resolver.Candidate, error) {
	return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q is a url dependency, not semver-ranged", name)
}

func (t *TarballFetcher) FetchPinned(ctx context.Context, name string, spec manifest.DependencySpec) (resolver.Candidate, error) {
	if spec.Kind != manifest.SpecURL {
		return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q is not a url dependency", name)
	}
	if spec.Integrity == "" {
		return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q: url dependency requires integrity", name)
	}
	want, err := digest.ParsePrefixed(spec.Integrity)
	if err != nil {
		return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q: %w", name, err)
	}

	destDir := filepath.Join(t.CacheRoot, sanitizeName(name)+"-"+want.Encoded()[:16])
	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		if err := downloadAndExtract(ctx, t.Client, spec.URL, destDir); err != nil {
			return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q: %w", name, err)
		}
	}

	if err := digest.Verify(destDir, want); err != nil {
		return resolver.Candidate{}, fmt.Errorf("FETCH_TARBALL: %q: %w", name, err)
	}

	pm, err := loadPackageManifestFrom(destDir)
	if err != nil {
		return resolver.Candidate{}, err
	}

	return resolver.Candidate{
		Source:   lockfile.Source{Kind: "tarball", URL: spec.URL},
		LocalDir: destDir,
		Resolved:  lockfile.Resolved{Identity: spec.Integrity},
		Integrity: spec.Integrity,
		Capabilities: map[string]bool{
			"exec":    pm.Capabilities.Exec,
			"network": pm.Capabilities.Network,
			"mcp":     pm.Capabilities.Mcp,
		},
		Dependencies: declaredDependencies(pm),
	}, nil
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// downloadAndExtract downloads a gzipped tarball and extracts it under
// destDir via stage-then-rename, shared by TarballFetcher and
// RegistryFetcher (a registry version's "source" field is itself a
// tarball URL — original_source/botpack/registry.py fetches it the
// same way once resolve_semver_dependency picks a version).
func downloadAndExtract(ctx context.Context, client *http.Client, url, destDir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	tmp := destDir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("untar: %w", err)
		}
		target := filepath.Join(tmp, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(tmp)+string(os.PathSeparator)) {
			return fmt.Errorf("untar: tarball entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			mode := os.FileMode(0o644)
			if hdr.FileInfo().Mode()&0o111 != 0 {
				mode = 0o755
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}

	return os.Rename(tmp, destDir)
}
