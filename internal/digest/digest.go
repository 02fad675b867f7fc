// Package digest computes the content-addressed identity of a normalized
// package tree (spec §3 "Content digest", §4.2 "Normalization").
package digest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	digestpkg "github.com/opencontainers/go-digest"
)

// Mode is the normalized mode bit of a regular file in the tree, per the
// §4.2 normalization rule: "preservation of file mode bits restricted to
// {regular-executable, regular}".
type Mode int

const (
	ModeRegular Mode = iota
	ModeExecutable
)

// Entry is one normalized tree member, in the shape hashed by Tree.
type Entry struct {
	Path       string // slash-separated, relative to tree root
	IsSymlink  bool
	LinkTarget string // set when IsSymlink
	Mode       Mode   // meaningful when !IsSymlink
}

// Tree computes the content digest of a directory, applying the
// normalization rules of spec §4.2 before hashing:
//   - lexical file ordering
//   - VCS directories excluded
//   - mode bits collapsed to {regular, regular-executable}
//   - symlink targets hashed as path strings, never dereferenced
//   - line endings are NOT normalized (open question §9, resolved: no)
//
// SHA-256 is used (spec §3: "BLAKE3 preferred, SHA-256 acceptable"); no
// BLAKE3 implementation is reachable from the retrieved corpus, so the
// acceptable fallback is used, exactly the way the teacher's own
// source/git_provider.go and clawhub_provider.go hash skill content.
func Tree(root string) (digestpkg.Digest, error) {
	entries, err := walk(root)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, e := range entries {
		if e.IsSymlink {
			fmt.Fprintf(h, "L %s\x00%s\x00", e.Path, e.LinkTarget)
			continue
		}
		modeTag := "F"
		if e.Mode == ModeExecutable {
			modeTag = "X"
		}
		fmt.Fprintf(h, "%s %s\x00", modeTag, e.Path)
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil {
			return "", fmt.Errorf("DIGEST_READ: %w", err)
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", fmt.Errorf("DIGEST_READ: %w", err)
		}
		f.Close()
		h.Write([]byte{0})
	}
	return digestpkg.NewDigestFromBytes(digestpkg.SHA256, h.Sum(nil)), nil
}

var vcsDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true, ".bzr": true,
}

// WalkRelative returns every normalized tree member's relative,
// slash-separated path under root, in the same order Tree hashes them.
// Used by internal/store to compute a store entry's recorded file list.
func WalkRelative(root string) ([]string, error) {
	entries, err := walk(root)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out, nil
}

func walk(root string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if vcsDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		base := filepath.Base(rel)
		if vcsDirs[base] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("DIGEST_READLINK: %w", err)
			}
			out = append(out, Entry{Path: rel, IsSymlink: true, LinkTarget: filepath.ToSlash(target)})
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil // sockets/devices/etc. are not part of an asset tree
		}
		mode := ModeRegular
		if info.Mode().Perm()&0o111 != 0 {
			mode = ModeExecutable
		}
		out = append(out, Entry{Path: rel, Mode: mode})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Verify re-hashes root and compares against want, returning a descriptive
// mismatch error suitable for the `verify` command (spec §4.3 Verification,
// scenario S3).
func Verify(root string, want digestpkg.Digest) error {
	got, err := Tree(root)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("STORE_INTEGRITY: digest mismatch: expected %s, got %s", want, got)
	}
	return nil
}

// ParsePrefixed validates a "<algorithm>:<hex>" integrity string, returning
// a typed digest.Digest. Accepts sha256 only; reject anything else early
// with a clear error rather than silently mis-hashing later.
func ParsePrefixed(s string) (digestpkg.Digest, error) {
	s = strings.TrimSpace(s)
	d, err := digestpkg.Parse(s)
	if err != nil {
		return "", fmt.Errorf("DIGEST_PARSE: invalid integrity value %q: %w", s, err)
	}
	if d.Algorithm() != digestpkg.SHA256 {
		return "", fmt.Errorf("DIGEST_PARSE: unsupported digest algorithm %q", d.Algorithm())
	}
	return d, nil
}
