// Package catalog emits the workspace's metadata-only asset index
// (spec §4.9 "Catalog"): a deterministic JSON document derived from the
// asset scanner with no skill bodies and no generation timestamp inside
// the hashed/compared content.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/botpack/botpack/internal/assets"
	"github.com/botpack/botpack/internal/fsutil"
)

const SchemaVersion = 1

// Entry is one asset's catalog record.
type Entry struct {
	Kind         string   `json:"kind"`
	ID           string   `json:"id"`
	Package      string   `json:"package,omitempty"`
	Path         string   `json:"path"`
	Description  string   `json:"description,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Document is the full catalog.json shape. GeneratedAt is carried for
// display purposes only and is never part of what's compared or hashed;
// callers that need a stable comparison should diff Entries, not the
// whole Document.
type Document struct {
	SchemaVersion int     `json:"schemaVersion"`
	GeneratedAt   string  `json:"generatedAt,omitempty"`
	Entries       []Entry `json:"entries"`
}

// Build converts scanned asset indices into a catalog document. Entries
// are already canonically ordered by assets.Sort; Build re-sorts
// defensively since catalog merges indices from multiple roots.
func Build(indices []assets.Index) Document {
	var entries []Entry
	for _, idx := range indices {
		for _, a := range idx.Assets {
			entries = append(entries, Entry{
				Kind: string(a.Kind), ID: a.ID, Package: a.Package, Path: a.Path,
				Description: a.Description, AllowedTools: a.AllowedTools,
				Capabilities: sortedKeys(a.Capabilities),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		if entries[i].Package != entries[j].Package {
			return entries[i].Package < entries[j].Package
		}
		return entries[i].ID < entries[j].ID
	})
	return Document{SchemaVersion: SchemaVersion, Entries: entries}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Write renders doc as stable-formatted JSON and writes it atomically.
func Write(path string, doc Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("CATALOG_ENCODE: %w", err)
	}
	return fsutil.AtomicWriteFsync(path, buf.Bytes(), 0o644)
}
