package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeJoinPreventsTraversal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "root")
	if _, err := SafeJoin(base, "../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to fail")
	}
	okPath, err := SafeJoin(base, "skills/foo")
	if err != nil {
		t.Fatalf("expected safe join to succeed: %v", err)
	}
	expected := filepath.Join(base, "skills", "foo")
	if okPath != expected {
		t.Fatalf("unexpected path %q != %q", okPath, expected)
	}
}

func TestSafeJoinRejectsAbsolutePath(t *testing.T) {
	base := t.TempDir()
	if _, err := SafeJoin(base, "/etc/passwd"); err == nil {
		t.Fatal("expected absolute rel path to be rejected")
	}
}

func TestValidateNoSymlinkPathDetectsPlantedSymlink(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "real"), 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "skills")
	if err := os.Symlink(filepath.Join(base, "real"), link); err != nil {
		t.Skipf("symlinks not supported in this environment: %v", err)
	}
	target := filepath.Join(link, "payload.md")
	if err := ValidateNoSymlinkPath(base, target); err == nil {
		t.Fatal("expected a symlinked path component to be rejected")
	}
}

func TestValidateNoSymlinkPathAllowsPlainPath(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "skills", "foo", "SKILL.md")
	if err := ValidateNoSymlinkPath(base, target); err != nil {
		t.Fatalf("expected plain nested path to be allowed: %v", err)
	}
}
