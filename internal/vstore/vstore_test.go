package vstore

import (
	"os"
	"path/filepath"
	"testing"

	digestpkg "github.com/opencontainers/go-digest"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/store"
)

func populated(t *testing.T) (storeRoot string, d digestpkg.Digest) {
	t.Helper()
	storeRoot = t.TempDir()
	src := filepath.Join(t.TempDir(), "pkg")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "SKILL.md"), []byte("# hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := digest.Tree(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Populate(storeRoot, d, src, store.Source{Kind: "path", Abs: src}); err != nil {
		t.Fatal(err)
	}
	return storeRoot, d
}

func TestLinkSymlinkMode(t *testing.T) {
	storeRoot, d := populated(t)
	dest := filepath.Join(t.TempDir(), "acme/reviewer@1.0.0")
	if err := Link(storeRoot, d, dest, Symlink); err != nil {
		t.Fatalf("Link: %v", err)
	}
	info, err := os.Lstat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("expected dest to be a symlink")
	}
	if !IsLinked(storeRoot, d, dest) {
		t.Fatal("expected IsLinked to report true for a fresh symlink")
	}
}

func TestLinkHardlinkMode(t *testing.T) {
	storeRoot, d := populated(t)
	dest := filepath.Join(t.TempDir(), "acme/reviewer@1.0.0")
	if err := Link(storeRoot, d, dest, Hardlink); err != nil {
		t.Fatalf("Link: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	if err != nil || string(content) != "# hi\n" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}
}

func TestLinkCopyMode(t *testing.T) {
	storeRoot, d := populated(t)
	dest := filepath.Join(t.TempDir(), "acme/reviewer@1.0.0")
	if err := Link(storeRoot, d, dest, Copy); err != nil {
		t.Fatalf("Link: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	if err != nil || string(content) != "# hi\n" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}
}

func TestLinkAutoFallsBack(t *testing.T) {
	storeRoot, d := populated(t)
	dest := filepath.Join(t.TempDir(), "acme/reviewer@1.0.0")
	if err := Link(storeRoot, d, dest, Auto); err != nil {
		t.Fatalf("Link: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
	if err != nil || string(content) != "# hi\n" {
		t.Fatalf("unexpected content %q err=%v", content, err)
	}
}

func TestUnlinkRemovesEntryNotStoreObject(t *testing.T) {
	storeRoot, d := populated(t)
	workspaceState := t.TempDir()
	dest := PackageDir(workspaceState, "acme/reviewer", "1.0.0")
	if err := Link(storeRoot, d, dest, Auto); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := Unlink(workspaceState, "acme/reviewer", "1.0.0"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("expected virtual-store entry to be removed")
	}
	if !store.Has(storeRoot, d) {
		t.Fatal("expected shared store object to survive Unlink")
	}
}

func TestParseModeDefaultsToAuto(t *testing.T) {
	m, err := ParseMode("")
	if err != nil || m != Auto {
		t.Fatalf("expected empty mode to default to auto, got %v err=%v", m, err)
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Fatal("expected unknown mode to be rejected")
	}
}
