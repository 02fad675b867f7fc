package digest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTreeIsDeterministic(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	files := map[string]string{
		"SKILL.md":          "# hi\n",
		"scripts/run.py":    "print(1)\n",
		"nested/a/b/c.json": "{}",
	}
	writeTree(t, a, files)
	writeTree(t, b, files)

	da, err := Tree(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Tree(b)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Fatalf("expected identical digests, got %s vs %s", da, db)
	}
}

func TestTreeChangesOnContentChange(t *testing.T) {
	a := t.TempDir()
	writeTree(t, a, map[string]string{"SKILL.md": "v1\n"})
	d1, _ := Tree(a)
	writeTree(t, a, map[string]string{"SKILL.md": "v2\n"})
	d2, _ := Tree(a)
	if d1 == d2 {
		t.Fatal("expected digest to change when content changes")
	}
}

func TestTreeIgnoresVCSDirs(t *testing.T) {
	a := t.TempDir()
	writeTree(t, a, map[string]string{"SKILL.md": "v1\n"})
	d1, _ := Tree(a)
	writeTree(t, a, map[string]string{".git/HEAD": "ref: refs/heads/main\n"})
	d2, _ := Tree(a)
	if d1 != d2 {
		t.Fatal("expected .git directory to be excluded from digest")
	}
}

func TestTreeHashesExecutableBit(t *testing.T) {
	a := t.TempDir()
	writeTree(t, a, map[string]string{"scripts/run.sh": "#!/bin/sh\n"})
	d1, _ := Tree(a)
	if err := os.Chmod(filepath.Join(a, "scripts/run.sh"), 0o755); err != nil {
		t.Fatal(err)
	}
	d2, _ := Tree(a)
	if d1 == d2 {
		return
	}
	t.Fatal("expected executable bit to change digest")
}

func TestVerifyMismatch(t *testing.T) {
	a := t.TempDir()
	writeTree(t, a, map[string]string{"SKILL.md": "v1\n"})
	good, _ := Tree(a)
	writeTree(t, a, map[string]string{"SKILL.md": "tampered\n"})
	if err := Verify(a, good); err == nil {
		t.Fatal("expected Verify to detect tampering")
	}
}

func TestParsePrefixedRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := ParsePrefixed("md5:deadbeef"); err == nil {
		t.Fatal("expected unsupported algorithm to be rejected")
	}
}
