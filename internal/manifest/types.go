package manifest

// SchemaVersion is the frozen v1 manifest schema, per the teacher's own
// convention of a single integer `version` field per document kind.
const SchemaVersion = 1

// Manifest is the project manifest (spec §3 "Manifest", §6 "Project
// manifest"), conventionally stored as botpack.toml at the workspace root.
type Manifest struct {
	Version      int                        `toml:"version"`
	Workspace    WorkspaceConfig            `toml:"workspace"`
	Dependencies map[string]DependencySpec  `toml:"-"`
	Sync         SyncPolicy                 `toml:"sync"`
	Targets      map[string]TargetConfig    `toml:"targets"`
	Aliases      AliasConfig                `toml:"aliases"`
}

// WorkspaceConfig is the `[workspace]` table.
type WorkspaceConfig struct {
	Dir     string `toml:"dir"`
	Name    string `toml:"name,omitempty"`
	Private bool   `toml:"private,omitempty"`
}

// SyncPolicy is the `[sync]` table.
type SyncPolicy struct {
	OnAdd     bool   `toml:"onAdd"`
	OnInstall bool   `toml:"onInstall"`
	Catalog   bool   `toml:"catalog"`
	LinkMode  string `toml:"linkMode"` // auto|symlink|hardlink|copy
}

// TargetConfig is one `[targets.<name>]` table.
type TargetConfig struct {
	Root       string `toml:"root"`
	Skills     string `toml:"skills,omitempty"`
	Commands   string `toml:"commands,omitempty"`
	Agents     string `toml:"agents,omitempty"`
	McpOut     string `toml:"mcpOut,omitempty"`
	PolicyMode string `toml:"policyMode,omitempty"` // fragments|generate|off
}

// AliasConfig is the `[aliases.skills|commands|agents]` tables: alias name
// to the underlying package-qualified asset name it rewrites to (spec
// §4.7 "Default output naming").
type AliasConfig struct {
	Skills   map[string]string `toml:"skills,omitempty"`
	Commands map[string]string `toml:"commands,omitempty"`
	Agents   map[string]string `toml:"agents,omitempty"`
}

// Capabilities are the declared risk-bearing properties of a package
// (spec §3 "Package manifest", GLOSSARY "Capability").
type Capabilities struct {
	Exec    bool `toml:"exec" json:"exec"`
	Network bool `toml:"network" json:"network"`
	Mcp     bool `toml:"mcp" json:"mcp"`
}

// CompatConfig is the `[compat]` table of a package manifest.
type CompatConfig struct {
	Requires string `toml:"requires,omitempty" json:"requires,omitempty"`
}

// PackageManifest is embedded in every fetched package (spec §3 "Package
// manifest", §6 "Package manifest"). Carries json tags alongside its toml
// ones since a copy is also recorded verbatim in a store entry's
// meta.json sidecar (internal/store).
type PackageManifest struct {
	Agentpkg     string            `toml:"agentpkg" json:"agentpkg"`
	Name         string            `toml:"name" json:"name"`
	Version      string            `toml:"version" json:"version"`
	Description  string            `toml:"description,omitempty" json:"description,omitempty"`
	License      string            `toml:"license,omitempty" json:"license,omitempty"`
	Repository   string            `toml:"repository,omitempty" json:"repository,omitempty"`
	Compat       CompatConfig      `toml:"compat" json:"compat"`
	Exports      map[string]string `toml:"exports,omitempty" json:"exports,omitempty"`
	Capabilities Capabilities      `toml:"capabilities" json:"capabilities"`
}

const PackageManifestFilename = "botpack.pkg.toml"
