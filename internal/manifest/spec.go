package manifest

import "fmt"

// SpecKind identifies which of the four dependency spec shapes (spec §3
// "Manifest") a DependencySpec holds.
type SpecKind string

const (
	SpecSemver SpecKind = "semver"
	SpecGit    SpecKind = "git"
	SpecPath   SpecKind = "path"
	SpecURL    SpecKind = "url"
)

// DependencySpec is one manifest dependency value: either a bare semver
// range string, or a `{git,rev?}` / `{path}` / `{url,integrity}` table.
type DependencySpec struct {
	Kind SpecKind

	Range string // SpecSemver

	Git string // SpecGit
	Rev string // SpecGit, optional; empty means "resolve ref to a commit"

	Path string // SpecPath

	URL       string // SpecURL
	Integrity string // SpecURL, required
}

// coerceDependencySpec turns a raw decoded TOML value (string or
// map[string]any, as produced by go-toml/v2 when decoding into `any`) into
// a typed DependencySpec. This sidesteps a custom toml.Unmarshaler: the
// dependencies table is heterogeneous by design (spec §3), and decoding to
// `any` first is the smaller, more auditable amount of custom code.
func coerceDependencySpec(name string, raw any) (DependencySpec, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q has empty semver range", name)
		}
		return DependencySpec{Kind: SpecSemver, Range: v}, nil
	case map[string]any:
		return coerceDependencyTable(name, v)
	default:
		return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q must be a string or table, got %T", name, raw)
	}
}

func coerceDependencyTable(name string, v map[string]any) (DependencySpec, error) {
	if git, ok := v["git"]; ok {
		gitURL, ok := git.(string)
		if !ok || gitURL == "" {
			return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q: git must be a non-empty string", name)
		}
		rev, _ := v["rev"].(string)
		return DependencySpec{Kind: SpecGit, Git: gitURL, Rev: rev}, nil
	}
	if path, ok := v["path"]; ok {
		p, ok := path.(string)
		if !ok || p == "" {
			return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q: path must be a non-empty string", name)
		}
		return DependencySpec{Kind: SpecPath, Path: p}, nil
	}
	if url, ok := v["url"]; ok {
		u, ok := url.(string)
		if !ok || u == "" {
			return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q: url must be a non-empty string", name)
		}
		integrity, _ := v["integrity"].(string)
		if integrity == "" {
			return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q: url dependency requires integrity", name)
		}
		return DependencySpec{Kind: SpecURL, URL: u, Integrity: integrity}, nil
	}
	return DependencySpec{}, fmt.Errorf("DOC_MANIFEST_SCHEMA: dependency %q: table must have one of git/path/url", name)
}

// toRaw renders a DependencySpec back into the plain TOML-friendly value
// (string or map[string]any) it was parsed from, for Save.
func (d DependencySpec) toRaw() any {
	switch d.Kind {
	case SpecGit:
		m := map[string]any{"git": d.Git}
		if d.Rev != "" {
			m["rev"] = d.Rev
		}
		return m
	case SpecPath:
		return map[string]any{"path": d.Path}
	case SpecURL:
		return map[string]any{"url": d.URL, "integrity": d.Integrity}
	default:
		return d.Range
	}
}

func (d DependencySpec) String() string {
	switch d.Kind {
	case SpecGit:
		if d.Rev != "" {
			return fmt.Sprintf("git:%s@%s", d.Git, d.Rev)
		}
		return fmt.Sprintf("git:%s", d.Git)
	case SpecPath:
		return fmt.Sprintf("path:%s", d.Path)
	case SpecURL:
		return fmt.Sprintf("url:%s", d.URL)
	default:
		return d.Range
	}
}
