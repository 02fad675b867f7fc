// Package trust implements the trust file model and the capability gate
// described in spec §4.8 "Trust gate" and §6 "Trust file".
package trust

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/botpack/botpack/internal/fsutil"
)

// McpOverride is a per-fqid trust override nested under a package's entry.
type McpOverride struct {
	AllowExec bool `toml:"allowExec"`
}

// DigestPin optionally pins the package's trusted content digest, so a
// trust decision doesn't silently carry over if the package's content
// changes underneath the same name@version (defensive against a
// compromised or rewritten registry entry).
type DigestPin struct {
	Integrity string `toml:"integrity"`
}

// Entry is one package's trust record, keyed by "name@version" (spec §3
// "Trust record").
type Entry struct {
	AllowExec bool                   `toml:"allowExec"`
	AllowMcp  bool                   `toml:"allowMcp"`
	Digest    *DigestPin             `toml:"digest,omitempty"`
	Mcp       map[string]McpOverride `toml:"mcp,omitempty"`
}

// File is the full trust.toml document.
type File struct {
	Packages map[string]Entry `toml:"packages"`
}

const Filename = "trust.toml"

func empty() File {
	return File{Packages: map[string]Entry{}}
}

// Load reads the trust file, returning an empty File if it doesn't exist
// yet (trust decisions are opt-in; absence means "nothing trusted").
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty(), nil
		}
		return File{}, fmt.Errorf("TRUST_READ: %w", err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("TRUST_PARSE: %w", err)
	}
	if f.Packages == nil {
		f.Packages = map[string]Entry{}
	}
	return f, nil
}

// Save writes the trust file atomically.
func Save(path string, f File) error {
	if f.Packages == nil {
		f.Packages = map[string]Entry{}
	}
	blob, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("TRUST_ENCODE: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, blob, 0o644)
}

// PackageKey is the trust/lockfile package key "name@version".
func PackageKey(name, version string) string {
	return name + "@" + version
}

// Decision is the outcome of gating one capability-bearing artifact.
type Decision struct {
	Allowed bool
	Reason  string
}

// Need describes which capabilities a materialization needs trust for.
type Need struct {
	Exec bool
	Mcp  bool
}

// CheckPackage evaluates package-wide trust (spec §4.8 precedence steps
// 2-3: package-wide allowExec/allowMcp, default deny).
func CheckPackage(f File, pkgKey string, integrity string, need Need) Decision {
	entry, ok := f.Packages[pkgKey]
	if !ok {
		if need.Exec || need.Mcp {
			return Decision{Allowed: false, Reason: fmt.Sprintf("%s: no trust record; run `botpack trust %s --allow exec --allow mcp`", pkgKey, pkgKey)}
		}
		return Decision{Allowed: true}
	}
	if entry.Digest != nil && integrity != "" && entry.Digest.Integrity != integrity {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: trust digest pin mismatch (trusted %s, got %s)", pkgKey, entry.Digest.Integrity, integrity)}
	}
	if need.Exec && !entry.AllowExec {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: exec not trusted", pkgKey)}
	}
	if need.Mcp && !entry.AllowMcp {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: mcp not trusted", pkgKey)}
	}
	return Decision{Allowed: true}
}

// CheckMcpServer evaluates trust for one MCP server's fqid (spec §4.8
// precedence: per-fqid override first, then package-wide, then deny).
func CheckMcpServer(f File, pkgKey string, integrity string, fqid string, need Need) Decision {
	entry, ok := f.Packages[pkgKey]
	if !ok {
		if need.Exec || need.Mcp {
			return Decision{Allowed: false, Reason: fmt.Sprintf("%s: no trust record for %s", pkgKey, fqid)}
		}
		return Decision{Allowed: true}
	}
	if entry.Digest != nil && integrity != "" && entry.Digest.Integrity != integrity {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: trust digest pin mismatch for %s", pkgKey, fqid)}
	}
	allowExec := entry.AllowExec
	allowMcp := entry.AllowMcp
	if override, ok := entry.Mcp[fqid]; ok {
		allowExec = override.AllowExec
	}
	if need.Exec && !allowExec {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: exec not trusted for %s", pkgKey, fqid)}
	}
	if need.Mcp && !allowMcp {
		return Decision{Allowed: false, Reason: fmt.Sprintf("%s: mcp not trusted for %s", pkgKey, fqid)}
	}
	return Decision{Allowed: true}
}

// SetPackageTrust updates (or creates) a package's trust entry, used by the
// `trust` command.
func SetPackageTrust(f *File, pkgKey string, allowExec, allowMcp *bool) {
	entry := f.Packages[pkgKey]
	if allowExec != nil {
		entry.AllowExec = *allowExec
	}
	if allowMcp != nil {
		entry.AllowMcp = *allowMcp
	}
	if f.Packages == nil {
		f.Packages = map[string]Entry{}
	}
	f.Packages[pkgKey] = entry
}
