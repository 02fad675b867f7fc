package mcpmerge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/botpack/botpack/internal/trust"
)

func writeServersToml(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseServersTomlNamespacesFqid(t *testing.T) {
	path := writeServersToml(t, `version = 1

[[server]]
id = "files"
command = "reviewer-mcp"
args = ["serve"]
`)
	servers, err := ParseServersToml(path, "acme/reviewer", "acme/reviewer@1.0.0", "sha256:abc")
	if err != nil {
		t.Fatalf("ParseServersToml: %v", err)
	}
	if len(servers) != 1 || servers[0].Fqid != "acme/reviewer/files" {
		t.Fatalf("unexpected servers: %+v", servers)
	}
	if !servers[0].RequiresExec() {
		t.Fatal("expected command-based server to require exec")
	}
}

func TestParseServersTomlRejectsUnsupportedVersion(t *testing.T) {
	path := writeServersToml(t, "version = 2\n")
	if _, err := ParseServersToml(path, "acme/reviewer", "acme/reviewer@1.0.0", ""); err == nil {
		t.Fatal("expected unsupported version to fail")
	}
}

func TestMergeDetectsFqidCollision(t *testing.T) {
	a := []Server{{Fqid: "acme/reviewer/files", Transport: "stdio", Command: "x"}}
	b := []Server{{Fqid: "acme/reviewer/files", Transport: "stdio", Command: "y"}}
	if _, err := Merge([][]Server{a, b}); err == nil {
		t.Fatal("expected fqid collision to be rejected")
	}
}

func TestGateOmitsUntrustedServers(t *testing.T) {
	servers := []Server{
		{Fqid: "acme/reviewer/files", Command: "reviewer-mcp", PkgKey: "acme/reviewer@1.0.0"},
		{Fqid: "acme/other/http", URL: "https://x", PkgKey: "acme/other@1.0.0"},
	}
	tf := trust.File{Packages: map[string]trust.Entry{
		"acme/reviewer@1.0.0": {AllowExec: true, AllowMcp: true},
	}}
	result := Gate(servers, tf)
	if len(result.Allowed) != 1 || result.Allowed[0].Fqid != "acme/reviewer/files" {
		t.Fatalf("expected only the trusted server to pass, got %+v", result.Allowed)
	}
	if len(result.Blocked) != 1 || result.Blocked[0].Server.Fqid != "acme/other/http" {
		t.Fatalf("expected the untrusted server to be blocked, got %+v", result.Blocked)
	}
}

func TestWriteDocumentIsDeterministic(t *testing.T) {
	doc := BuildDocument([]Server{
		{Fqid: "acme/reviewer/files", Transport: "stdio", Command: "reviewer-mcp", Args: []string{"serve"}},
	})
	path := filepath.Join(t.TempDir(), "mcp.json")
	if err := WriteDocument(path, doc); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteDocument(path, doc); err != nil {
		t.Fatalf("WriteDocument (second): %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("expected repeated WriteDocument calls to produce identical bytes")
	}
	if first[len(first)-1] != '\n' {
		t.Fatal("expected a trailing newline")
	}
}
