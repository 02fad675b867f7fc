// Package lockfile implements the deterministic, canonically-ordered
// serialization of the resolved dependency graph (spec §3 "Lockfile",
// §4.5 "Lockfile").
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/botpack/botpack/internal/fsutil"
)

const (
	LockfileSchemaVersion = 1
	SpecVersion           = "1.0"
)

// ToolVersion is stamped into every lockfile; overridden in tests and by
// the release build via -ldflags, following the teacher's cmd/skillpm/version.go.
var ToolVersion = "dev"

// Source is the tagged source value of spec §3 "Resolved package":
// {kind:git,url} | {kind:path,abs} | {kind:registry,url} | {kind:tarball,url}.
type Source struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Abs  string `json:"abs,omitempty"`
}

// Resolved carries the resolved-identity of spec §3: commit SHA for git,
// snapshot marker for path, plus the original constraint for readability.
type Resolved struct {
	Identity    string `json:"identity"`
	OriginalRef string `json:"originalRef,omitempty"`
}

// Package is one resolved package record (spec §3 "Resolved package").
type Package struct {
	Source       Source            `json:"source"`
	Resolved     Resolved          `json:"resolved"`
	Integrity    string            `json:"integrity"`
	Dependencies map[string]string `json:"dependencies"`
	Capabilities map[string]bool   `json:"capabilities"`
}

// Lockfile is the top-level document (spec §3 "Lockfile", §4.5).
type Lockfile struct {
	LockfileVersion int                `json:"lockfileVersion"`
	ToolVersion     string             `json:"toolVersion"`
	SpecVersion     string             `json:"specVersion"`
	Dependencies    map[string]string  `json:"dependencies"`
	Packages        map[string]Package `json:"packages"`
}

func Empty() Lockfile {
	return Lockfile{
		LockfileVersion: LockfileSchemaVersion,
		ToolVersion:     ToolVersion,
		SpecVersion:     SpecVersion,
		Dependencies:    map[string]string{},
		Packages:        map[string]Package{},
	}
}

// Key renders the "name@version" package key used throughout the spec.
func Key(name, version string) string {
	return name + "@" + version
}

// Load reads and validates a lockfile. A missing file is not an error: it
// returns Empty(), matching the resolver's "no lockfile yet" starting state.
func Load(path string) (Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return Lockfile{}, fmt.Errorf("LOCK_READ: %w", err)
	}
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return Lockfile{}, fmt.Errorf("LOCK_PARSE: %w", err)
	}
	if lf.LockfileVersion != LockfileSchemaVersion {
		return Lockfile{}, fmt.Errorf("LOCK_VERSION: unsupported lockfileVersion %d", lf.LockfileVersion)
	}
	if lf.Dependencies == nil {
		lf.Dependencies = map[string]string{}
	}
	if lf.Packages == nil {
		lf.Packages = map[string]Package{}
	}
	for key, pkg := range lf.Packages {
		if pkg.Dependencies == nil {
			pkg.Dependencies = map[string]string{}
		}
		if pkg.Capabilities == nil {
			pkg.Capabilities = map[string]bool{}
		}
		lf.Packages[key] = pkg
	}
	return lf, nil
}

// Save writes the lockfile using the canonical JSON form of spec §4.5:
// object keys sorted lexicographically (UTF-8 code-point order) at every
// level, 2-space indent, LF line endings, final newline, no trailing
// whitespace, no timestamps or host paths.
//
// Struct fields encode in Go declaration order, not key order, so
// marshaling Lockfile/Package directly would leave e.g. "lockfileVersion"
// ahead of "dependencies". canonicalJSON instead round-trips through
// map[string]any, whose keys encoding/json always sorts lexicographically,
// before the final indented encode. No canonicalization library in the
// retrieved corpus fits this shape (see DESIGN.md).
func Save(path string, lf Lockfile) error {
	lf.LockfileVersion = LockfileSchemaVersion
	if lf.ToolVersion == "" {
		lf.ToolVersion = ToolVersion
	}
	if lf.SpecVersion == "" {
		lf.SpecVersion = SpecVersion
	}
	blob, err := canonicalJSON(lf)
	if err != nil {
		return fmt.Errorf("LOCK_ENCODE: %w", err)
	}
	return fsutil.AtomicWriteFsync(path, blob, 0o644)
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	// json.Encoder.Encode already appends exactly one trailing newline.
	return buf.Bytes(), nil
}

// Upsert inserts or replaces a package record.
func Upsert(lf *Lockfile, key string, pkg Package) {
	if lf.Packages == nil {
		lf.Packages = map[string]Package{}
	}
	lf.Packages[key] = pkg
}

// Remove deletes a package record, returning whether it existed.
func Remove(lf *Lockfile, key string) bool {
	if _, ok := lf.Packages[key]; !ok {
		return false
	}
	delete(lf.Packages, key)
	return true
}

// SortedPackageKeys returns package keys in lexicographic order, the
// canonical iteration order for any report or materialization plan that
// must be deterministic (spec invariant: byte-identical lockfile/output).
func SortedPackageKeys(lf Lockfile) []string {
	keys := make([]string, 0, len(lf.Packages))
	for k := range lf.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
