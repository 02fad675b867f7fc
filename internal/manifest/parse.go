package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/botpack/botpack/internal/fsutil"
)

// wireManifest mirrors Manifest but with Dependencies decoded generically,
// since the table is heterogeneous (string | table) per dependency.
type wireManifest struct {
	Version      int                     `toml:"version"`
	Workspace    WorkspaceConfig         `toml:"workspace"`
	Dependencies map[string]any          `toml:"dependencies"`
	Sync         SyncPolicy              `toml:"sync"`
	Targets      map[string]TargetConfig `toml:"targets"`
	Aliases      AliasConfig             `toml:"aliases"`
}

// Default filename for the project manifest at a workspace root.
const DefaultManifestFilename = "botpack.toml"

func DefaultManifest() Manifest {
	return Manifest{
		Version: SchemaVersion,
		Workspace: WorkspaceConfig{
			Dir: "assets",
		},
		Dependencies: map[string]DependencySpec{},
		Sync: SyncPolicy{
			OnAdd:     true,
			OnInstall: true,
			Catalog:   true,
			LinkMode:  "auto",
		},
		Targets: map[string]TargetConfig{},
	}
}

// Load reads and validates the project manifest at path.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var wire wireManifest
	if err := toml.Unmarshal(data, &wire); err != nil {
		return Manifest{}, fmt.Errorf("DOC_MANIFEST_PARSE: %w", err)
	}
	m := Manifest{
		Version:   wire.Version,
		Workspace: wire.Workspace,
		Sync:      wire.Sync,
		Targets:   wire.Targets,
		Aliases:   wire.Aliases,
	}
	if m.Version == 0 {
		m.Version = SchemaVersion
	}
	m.Dependencies = map[string]DependencySpec{}
	names := make([]string, 0, len(wire.Dependencies))
	for name := range wire.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec, err := coerceDependencySpec(name, wire.Dependencies[name])
		if err != nil {
			return Manifest{}, err
		}
		m.Dependencies[name] = spec
	}
	if err := Validate(m); err != nil {
		return Manifest{}, err
	}
	return Normalize(m), nil
}

// Save writes the project manifest to path atomically.
func Save(path string, m Manifest) error {
	m = Normalize(m)
	if err := Validate(m); err != nil {
		return err
	}
	wire := wireManifest{
		Version:      m.Version,
		Workspace:    m.Workspace,
		Dependencies: map[string]any{},
		Sync:         m.Sync,
		Targets:      m.Targets,
		Aliases:      m.Aliases,
	}
	for name, spec := range m.Dependencies {
		wire.Dependencies[name] = spec.toRaw()
	}
	blob, err := toml.Marshal(wire)
	if err != nil {
		return fmt.Errorf("DOC_MANIFEST_ENCODE: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, blob, 0o644)
}

// Normalize fills in defaults for zero-value fields, mirroring the
// teacher's config.Normalize shape.
func Normalize(m Manifest) Manifest {
	if m.Version == 0 {
		m.Version = SchemaVersion
	}
	if m.Workspace.Dir == "" {
		m.Workspace.Dir = "assets"
	}
	if m.Sync.LinkMode == "" {
		m.Sync.LinkMode = "auto"
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]DependencySpec{}
	}
	if m.Targets == nil {
		m.Targets = map[string]TargetConfig{}
	}
	return m
}

var allowedLinkModes = map[string]bool{"auto": true, "symlink": true, "hardlink": true, "copy": true}
var allowedPolicyModes = map[string]bool{"": true, "fragments": true, "generate": true, "off": true}

// Validate enforces the closed, exhaustively-enumerated schema (spec §9
// "Dynamic config objects" redesign guidance): unrecognized values for
// enum-shaped fields are parse errors, not silently ignored.
func Validate(m Manifest) error {
	if m.Version != SchemaVersion {
		return fmt.Errorf("DOC_MANIFEST_VERSION: unsupported manifest version %d", m.Version)
	}
	if m.Sync.LinkMode != "" && !allowedLinkModes[m.Sync.LinkMode] {
		return fmt.Errorf("DOC_MANIFEST_SCHEMA: invalid sync.linkMode %q", m.Sync.LinkMode)
	}
	for name, target := range m.Targets {
		if target.Root == "" {
			return fmt.Errorf("DOC_MANIFEST_SCHEMA: target %q missing root", name)
		}
		if !allowedPolicyModes[target.PolicyMode] {
			return fmt.Errorf("DOC_MANIFEST_SCHEMA: target %q invalid policyMode %q", name, target.PolicyMode)
		}
	}
	for name := range m.Dependencies {
		if name == "" {
			return fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency name must not be empty")
		}
	}
	return nil
}

// FindDependency looks up a direct dependency by name.
func FindDependency(m Manifest, name string) (DependencySpec, bool) {
	spec, ok := m.Dependencies[name]
	return spec, ok
}
