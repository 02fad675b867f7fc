package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/botpack/botpack/internal/assets"
)

func TestBuildOrdersEntriesCanonically(t *testing.T) {
	idx := assets.Index{Assets: []assets.Asset{
		{Kind: assets.KindSkill, ID: "zeta", Package: "acme/a@1.0.0"},
		{Kind: assets.KindAgent, ID: "alpha", Package: "acme/a@1.0.0"},
		{Kind: assets.KindSkill, ID: "alpha", Package: "acme/a@1.0.0"},
	}}
	doc := Build([]assets.Index{idx})
	if len(doc.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(doc.Entries))
	}
	if doc.Entries[0].Kind != "agent" {
		t.Fatalf("expected agent first, got %+v", doc.Entries[0])
	}
	if doc.Entries[1].ID != "alpha" || doc.Entries[2].ID != "zeta" {
		t.Fatalf("expected skills sorted by id, got %+v", doc.Entries[1:])
	}
}

func TestWriteIsDeterministicAcrossCapabilityMapOrdering(t *testing.T) {
	idx := assets.Index{Assets: []assets.Asset{
		{Kind: assets.KindSkill, ID: "reviewer", Capabilities: map[string]bool{"network": true, "exec": true}},
	}}
	doc := Build([]assets.Index{idx})
	if len(doc.Entries[0].Capabilities) != 2 || doc.Entries[0].Capabilities[0] != "exec" {
		t.Fatalf("expected sorted capabilities, got %+v", doc.Entries[0].Capabilities)
	}

	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := Write(path, doc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatal("expected a trailing newline")
	}
}
