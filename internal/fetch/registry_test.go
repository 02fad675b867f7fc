package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/resolver"
)

func TestRegistryFetcherListAndFetchVersion(t *testing.T) {
	// Seed the cache entry FetchVersion looks up for 1.2.0, so the fetch
	// verifies cached content instead of downloading a tarball.
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "SKILL.md"), []byte("# reviewer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := digest.Tree(src)
	if err != nil {
		t.Fatal(err)
	}
	cacheRoot := t.TempDir()
	cached := filepath.Join(cacheRoot, sanitizeName("acme/reviewer")+"-"+d.Encoded()[:16])
	if err := os.MkdirAll(cached, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cached, "SKILL.md"), []byte("# reviewer\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/reviewer/versions.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(versionsIndex{
			Versions: []versionsIndexEntry{
				{Version: "1.0.0", Source: "http://" + r.Host + "/acme/reviewer", Integrity: "sha256:" + hex64("a")},
				{Version: "1.2.0", Source: "http://" + r.Host + "/acme/reviewer", Integrity: d.String(), Capabilities: map[string]bool{"exec": true}},
			},
		})
	}))
	defer server.Close()

	f := &RegistryFetcher{Client: server.Client(), BaseURL: server.URL, CacheRoot: cacheRoot}
	versions, err := f.ListVersions(context.Background(), "acme/reviewer")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}

	cand, err := f.FetchVersion(context.Background(), "acme/reviewer", versions[1])
	if err != nil {
		t.Fatalf("FetchVersion: %v", err)
	}
	if !cand.Capabilities["exec"] {
		t.Fatal("expected exec capability from registry entry")
	}
	if cand.Integrity != d.String() {
		t.Fatalf("unexpected integrity: %q", cand.Integrity)
	}
}

func TestRegistryFetcherRejectsMissingIntegrity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(versionsIndex{
			Versions: []versionsIndexEntry{{Version: "1.0.0", Source: "https://x"}},
		})
	}))
	defer server.Close()

	f := &RegistryFetcher{Client: server.Client(), BaseURL: server.URL}
	_, err := f.FetchVersion(context.Background(), "acme/reviewer", resolver.VersionEntry{Version: "1.0.0"})
	if err == nil {
		t.Fatal("expected missing integrity to be rejected")
	}
}

// hex64 generates a stable-looking 64-char hex string for test fixtures
// without depending on crypto/rand or a real sha256 sum.
func hex64(seed string) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = "0123456789abcdef"[(int(seed[0])+i)%16]
	}
	return string(out)
}
