package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/botpack/botpack/internal/manifest"
)

func writePackage(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	pm := manifest.PackageManifest{
		Agentpkg: "1",
		Name:     "acme/local",
		Version:  "0.1.0",
		Capabilities: manifest.Capabilities{
			Exec: true,
		},
	}
	if err := manifest.SavePackageManifest(dir, pm); err != nil {
		t.Fatalf("SavePackageManifest: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "skills"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skills", "x.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPathFetcherResolvesRelativeToBaseDir(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "vendor", "acme-local")
	writePackage(t, pkgDir)

	f := &PathFetcher{BaseDir: root}
	spec := manifest.DependencySpec{Kind: manifest.SpecPath, Path: "vendor/acme-local"}
	cand, err := f.FetchPinned(context.Background(), "acme/local", spec)
	if err != nil {
		t.Fatalf("FetchPinned: %v", err)
	}
	if cand.Source.Kind != "path" || cand.Source.Abs != pkgDir {
		t.Fatalf("unexpected source: %+v", cand.Source)
	}
	if cand.Integrity == "" || cand.Resolved.Identity != cand.Integrity {
		t.Fatalf("expected identity to equal the tree digest, got %+v", cand.Resolved)
	}
	if !cand.Capabilities["exec"] {
		t.Fatal("expected exec capability carried over from package manifest")
	}
}

func TestPathFetcherIsDeterministic(t *testing.T) {
	root := t.TempDir()
	pkgDir := filepath.Join(root, "vendor", "acme-local")
	writePackage(t, pkgDir)

	f := &PathFetcher{BaseDir: root}
	spec := manifest.DependencySpec{Kind: manifest.SpecPath, Path: "vendor/acme-local"}
	c1, err := f.FetchPinned(context.Background(), "acme/local", spec)
	if err != nil {
		t.Fatalf("FetchPinned: %v", err)
	}
	c2, err := f.FetchPinned(context.Background(), "acme/local", spec)
	if err != nil {
		t.Fatalf("FetchPinned: %v", err)
	}
	if c1.Integrity != c2.Integrity {
		t.Fatalf("expected deterministic digest, got %q vs %q", c1.Integrity, c2.Integrity)
	}
}

func TestPathFetcherRejectsSemverCalls(t *testing.T) {
	f := &PathFetcher{BaseDir: t.TempDir()}
	if _, err := f.ListVersions(context.Background(), "acme/local"); err == nil {
		t.Fatal("expected ListVersions to reject a path dependency")
	}
}
