package assets

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, root, id, frontmatter string) {
	t.Helper()
	dir := filepath.Join(root, "skills", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "---\n" + frontmatter + "\n---\n\n# " + id + "\n\nbody text.\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanFindsSkillsCommandsAgents(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "reviewer", "id: reviewer\ndescription: reviews code\nallowed-tools: [\"read\", \"grep\"]\nexec: true\n")

	if err := os.MkdirAll(filepath.Join(root, "commands"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "commands", "deploy.md"), []byte("---\ndescription: deploy it\n---\nbody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "agents"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "agents", "helper.md"), []byte("no frontmatter here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := Scan(root, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(idx.Assets) != 3 {
		t.Fatalf("expected 3 assets, got %d: %+v", len(idx.Assets), idx.Assets)
	}
	// ordering: agent < command < skill (lexical Kind order)
	if idx.Assets[0].Kind != KindAgent || idx.Assets[1].Kind != KindCommand || idx.Assets[2].Kind != KindSkill {
		t.Fatalf("unexpected ordering: %+v", idx.Assets)
	}
	skill := idx.Assets[2]
	if skill.Description != "reviews code" {
		t.Fatalf("unexpected description %q", skill.Description)
	}
	if !skill.Capabilities["exec"] {
		t.Fatal("expected exec capability to be detected")
	}
	if len(skill.AllowedTools) != 2 || skill.AllowedTools[0] != "read" {
		t.Fatalf("unexpected allowed-tools %+v", skill.AllowedTools)
	}
}

func TestScanRejectsMalformedFrontmatter(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "skills", "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\ndescription: unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Scan(root, ""); err == nil {
		t.Fatal("expected malformed frontmatter to fail with a parse error")
	}
}

func TestScanExtractsPep723ScriptMetadata(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "runner", "description: runs a script\n")
	scriptsDir := filepath.Join(root, "skills", "runner", "scripts")
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	script := `#!/usr/bin/env python3
# /// script
# requires-python = ">=3.11"
# dependencies = [
#   "httpx",
#   "rich",
# ]
# ///
import httpx
`
	if err := os.WriteFile(filepath.Join(scriptsDir, "run.py"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := Scan(root, "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(idx.Scripts) != 1 {
		t.Fatalf("expected 1 script metadata entry, got %d", len(idx.Scripts))
	}
	meta := idx.Scripts[0]
	if meta.RequiresPython != ">=3.11" {
		t.Fatalf("unexpected requires-python %q", meta.RequiresPython)
	}
	if len(meta.Dependencies) != 2 || meta.Dependencies[0] != "httpx" || meta.Dependencies[1] != "rich" {
		t.Fatalf("unexpected dependencies %+v", meta.Dependencies)
	}
}

func TestScanFindsMcpAndPolicy(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "mcp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "mcp", "servers.toml"), []byte("[[server]]\nid = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "policy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "policy", "network.toml"), []byte("deny = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := Scan(root, "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	kinds := map[Kind]bool{}
	for _, a := range idx.Assets {
		kinds[a.Kind] = true
	}
	if !kinds[KindMcp] || !kinds[KindPolicy] {
		t.Fatalf("expected mcp and policy assets, got %+v", idx.Assets)
	}
}
