// Package assets scans a workspace's own assets directory and every
// resolved package in the virtual store for conventional asset paths
// (spec §4.6 "Asset scanner"), extracting only frontmatter metadata —
// never a full skill body — so the index stays cheap to build and safe
// to materialize into a catalog.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind identifies which conventional asset category a path belongs to.
type Kind string

const (
	KindSkill   Kind = "skill"
	KindCommand Kind = "command"
	KindAgent   Kind = "agent"
	KindMcp     Kind = "mcp"
	KindPolicy  Kind = "policy"
)

// Asset is one canonical scanned asset (spec §4.6, "canonical asset
// objects with a stable ordering").
type Asset struct {
	Kind        Kind
	ID          string
	Package     string // owning package's "name@version", or "" for workspace-local assets
	Path        string // path relative to the owning root
	AbsPath     string
	Description string
	AllowedTools []string
	Capabilities map[string]bool // derived from frontmatter flags, e.g. "exec"
}

// PythonScriptMeta is PEP-723 metadata extracted from a skill's
// scripts/*.py files, used to report runtime requirements without
// executing or fully reading the script body.
type PythonScriptMeta struct {
	Path             string
	RequiresPython   string
	Dependencies     []string
}

// Index is the scan result for one source root (the workspace's own
// assets directory, or one package's virtual-store directory).
type Index struct {
	Assets  []Asset
	Scripts []PythonScriptMeta
}

// Scan walks root looking for the conventional asset paths:
//
//	skills/<id>/SKILL.md
//	commands/<id>.md
//	agents/<id>.md
//	mcp/servers.toml
//	policy/*
//
// pkgKey is the owning package's "name@version" ("" for the workspace's
// own local assets directory, which has no package identity).
func Scan(root, pkgKey string) (Index, error) {
	var idx Index

	skillsDir := filepath.Join(root, "skills")
	entries, err := os.ReadDir(skillsDir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id := e.Name()
			skillPath := filepath.Join(skillsDir, id, "SKILL.md")
			fm, parseErr := readFrontmatter(skillPath)
			if parseErr != nil {
				return Index{}, fmt.Errorf("ASSET_PARSE: %s: %w", skillPath, parseErr)
			}
			if fm == nil {
				continue
			}
			idx.Assets = append(idx.Assets, Asset{
				Kind: KindSkill, ID: id, Package: pkgKey,
				Path: relOrSelf(root, skillPath), AbsPath: skillPath,
				Description: fm.get("description"), AllowedTools: splitList(fm.get("allowed-tools")),
				Capabilities: fm.capabilities(),
			})
			scriptsDir := filepath.Join(skillsDir, id, "scripts")
			scriptEntries, _ := os.ReadDir(scriptsDir)
			for _, se := range scriptEntries {
				if se.IsDir() || !strings.HasSuffix(se.Name(), ".py") {
					continue
				}
				p := filepath.Join(scriptsDir, se.Name())
				meta, err := readPep723(p)
				if err != nil {
					return Index{}, fmt.Errorf("ASSET_PARSE: %s: %w", p, err)
				}
				if meta != nil {
					meta.Path = relOrSelf(root, p)
					idx.Scripts = append(idx.Scripts, *meta)
				}
			}
		}
	}

	if err := scanFlatDir(root, "commands", KindCommand, pkgKey, &idx); err != nil {
		return Index{}, err
	}
	if err := scanFlatDir(root, "agents", KindAgent, pkgKey, &idx); err != nil {
		return Index{}, err
	}

	mcpPath := filepath.Join(root, "mcp", "servers.toml")
	if _, err := os.Stat(mcpPath); err == nil {
		idx.Assets = append(idx.Assets, Asset{
			Kind: KindMcp, ID: "servers", Package: pkgKey,
			Path: relOrSelf(root, mcpPath), AbsPath: mcpPath,
		})
	}

	policyDir := filepath.Join(root, "policy")
	policyEntries, _ := os.ReadDir(policyDir)
	for _, e := range policyEntries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(policyDir, e.Name())
		idx.Assets = append(idx.Assets, Asset{
			Kind: KindPolicy, ID: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), Package: pkgKey,
			Path: relOrSelf(root, p), AbsPath: p,
		})
	}

	Sort(idx.Assets)
	return idx, nil
}

func scanFlatDir(root, sub string, kind Kind, pkgKey string, idx *Index) error {
	dir := filepath.Join(root, sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".md")
		p := filepath.Join(dir, e.Name())
		fm, parseErr := readFrontmatter(p)
		if parseErr != nil {
			return fmt.Errorf("ASSET_PARSE: %s: %w", p, parseErr)
		}
		a := Asset{Kind: kind, ID: id, Package: pkgKey, Path: relOrSelf(root, p), AbsPath: p}
		if fm != nil {
			a.Description = fm.get("description")
			a.AllowedTools = splitList(fm.get("allowed-tools"))
			a.Capabilities = fm.capabilities()
		}
		idx.Assets = append(idx.Assets, a)
	}
	return nil
}

// Sort imposes the canonical ordering spec §4.6 requires: type, then
// owning package, then id.
func Sort(assets []Asset) {
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Kind != assets[j].Kind {
			return assets[i].Kind < assets[j].Kind
		}
		if assets[i].Package != assets[j].Package {
			return assets[i].Package < assets[j].Package
		}
		return assets[i].ID < assets[j].ID
	})
}

func relOrSelf(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
