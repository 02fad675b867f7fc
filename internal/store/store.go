// Package store implements the global content-addressed package store
// (spec §3 "Global store", §4.2 "Store population"): every distinct
// package tree lives exactly once, keyed by its content digest, and is
// populated through a crash-safe stage-then-rename protocol guarded by a
// per-digest advisory lock.
//
// Each store entry is laid out as spec §3 "Store entry" / §4.3 "Path"
// describe: the fetched tree under <digest>/payload/, with a <digest>/
// meta.json sidecar recording the package's source, its declared
// manifest, and the computed file list; `doctor` reports an entry whose
// sidecar is missing or unreadable.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	digestpkg "github.com/opencontainers/go-digest"

	"github.com/botpack/botpack/internal/digest"
	"github.com/botpack/botpack/internal/fsutil"
	"github.com/botpack/botpack/internal/manifest"
)

// MetaFilename is the entry metadata sidecar's name, a sibling of
// payload/ inside each digest-addressed object directory.
const MetaFilename = "meta.json"

// PayloadDirName is the subdirectory holding the actual fetched tree.
const PayloadDirName = "payload"

// Source is the tagged origin of a store entry, mirroring
// lockfile.Source's shape without importing internal/lockfile (store is
// a lower-level package the lockfile format shouldn't need to know about).
type Source struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Abs  string `json:"abs,omitempty"`
}

// Meta is a store entry's metadata sidecar (spec §3 "Store entry"): where
// the content came from, the package manifest it declared, and the
// computed list of files under payload/, so consumers can check a
// package's declared shape without re-walking or re-parsing the tree.
type Meta struct {
	Source   Source                   `json:"source"`
	Manifest manifest.PackageManifest `json:"manifest"`
	Files    []string                 `json:"files"`
}

// ObjectsDirName mirrors the teacher's flat per-kind subdirectory layout
// (internal/store/paths.go: InstalledRoot/StagingRoot/...), adapted to a
// digest-addressed tree instead of a skill-ref-addressed one.
const (
	ObjectsDirName = "objects"
	StagingDirName = "staging"
	LocksDirName   = "locks"
)

func ObjectsRoot(root string) string { return filepath.Join(root, ObjectsDirName) }
func StagingRoot(root string) string { return filepath.Join(root, StagingDirName) }
func LocksRoot(root string) string   { return filepath.Join(root, LocksDirName) }

// ObjectDir returns the on-disk location for a digest's entry, sharded by
// the first two hex characters the way git and most CAS stores avoid
// giant flat directories. The entry itself holds payload/ and meta.json
// (see PayloadDir/MetaPath).
func ObjectDir(root string, d digestpkg.Digest) string {
	enc := d.Encoded()
	shard := enc
	if len(enc) >= 2 {
		shard = enc[:2]
	}
	return filepath.Join(ObjectsRoot(root), string(d.Algorithm()), shard, enc)
}

// PayloadDir returns the directory holding a store entry's actual fetched
// tree, the path anything materializing or re-hashing content should use.
func PayloadDir(root string, d digestpkg.Digest) string {
	return filepath.Join(ObjectDir(root, d), PayloadDirName)
}

// MetaPath returns a store entry's metadata sidecar path.
func MetaPath(root string, d digestpkg.Digest) string {
	return filepath.Join(ObjectDir(root, d), MetaFilename)
}

// EnsureLayout creates the store's top-level directories.
func EnsureLayout(root string) error {
	for _, d := range []string{root, ObjectsRoot(root), StagingRoot(root), LocksRoot(root)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("STORE_LAYOUT: %w", err)
		}
	}
	return nil
}

// Has reports whether the store already holds a complete object for
// digest d. meta.json is written last (after the payload rename), so its
// presence is what marks an entry complete; a crash between the two
// leaves an orphaned payload/ that a retried Populate will overwrite.
func Has(root string, d digestpkg.Digest) bool {
	info, err := os.Stat(MetaPath(root, d))
	return err == nil && !info.IsDir()
}

// Populate stages srcDir, verifies it hashes to d, and atomically publishes
// it into the store (spec §4.2 "Store population"):
//  1. copy srcDir into a uniquely-named staging directory
//  2. recompute the content digest and reject on mismatch
//  3. rename the staging directory into its final payload/ path
//  4. load srcDir's package manifest (if any) and write the meta.json
//     sidecar recording source, manifest, and computed file list
//
// A per-digest advisory lock (internal/fsutil) prevents two concurrent
// installs of the same package from racing the stage-and-rename, following
// the crash-safety idiom of the teacher's tmp-then-rename AtomicWrite.
func Populate(root string, d digestpkg.Digest, srcDir string, src Source) error {
	if err := EnsureLayout(root); err != nil {
		return err
	}
	finalDir := ObjectDir(root, d)
	payloadDir := filepath.Join(finalDir, PayloadDirName)
	if Has(root, d) {
		return nil // already populated by a prior install; content-addressed, so idempotent
	}

	lockPath := filepath.Join(LocksRoot(root), d.Algorithm().String()+"-"+d.Encoded()+".lock")
	lock, err := fsutil.AcquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	defer lock.Release()

	if Has(root, d) {
		return nil // populated by another process between the first check and taking the lock
	}

	stageDir := filepath.Join(StagingRoot(root), fsutil.UniqueName(d.Encoded()))
	if err := os.MkdirAll(filepath.Dir(stageDir), 0o755); err != nil {
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	if err := copyTree(srcDir, stageDir); err != nil {
		return fmt.Errorf("STORE_POPULATE: staging copy failed: %w", err)
	}

	got, err := digest.Tree(stageDir)
	if err != nil {
		os.RemoveAll(stageDir)
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	if got != d {
		os.RemoveAll(stageDir)
		return fmt.Errorf("STORE_POPULATE: content digest mismatch: expected %s, got %s", d, got)
	}

	// A missing or schema-invalid package manifest isn't a populate
	// failure: plain asset bundles with no botpack.pkg.toml are valid
	// store entries (spec §4.6 "Asset scanner", Non-goals), matching
	// internal/fetch's loadPackageManifestFrom.
	pm, _ := manifest.LoadPackageManifest(stageDir)
	files, err := fileList(stageDir)
	if err != nil {
		os.RemoveAll(stageDir)
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}

	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		os.RemoveAll(stageDir)
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	if err := os.Rename(stageDir, payloadDir); err != nil {
		os.RemoveAll(stageDir)
		return fmt.Errorf("STORE_POPULATE: publish failed: %w", err)
	}

	meta := Meta{Source: src, Manifest: pm, Files: files}
	blob, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	if err := fsutil.AtomicWriteFsync(filepath.Join(finalDir, MetaFilename), blob, 0o644); err != nil {
		return fmt.Errorf("STORE_POPULATE: %w", err)
	}
	return fsutil.FsyncDir(filepath.Dir(finalDir))
}

// LoadMeta reads back a store entry's metadata sidecar.
func LoadMeta(root string, d digestpkg.Digest) (Meta, error) {
	data, err := os.ReadFile(MetaPath(root, d))
	if err != nil {
		return Meta{}, fmt.Errorf("STORE_META_READ: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("STORE_META_PARSE: %w", err)
	}
	return m, nil
}

// Verify re-hashes a stored object's payload against its claimed digest,
// detecting bit-rot or out-of-band tampering (spec §4.3 "Verify", S3).
func Verify(root string, d digestpkg.Digest) error {
	if !Has(root, d) {
		return fmt.Errorf("STORE_MISSING: %s not present in store", d)
	}
	return digest.Verify(PayloadDir(root, d), d)
}

// fileList returns every regular/symlink path under root, relative,
// slash-separated, and lexicographically sorted (digest.WalkRelative's
// order) — the file list meta.json records for a store entry (spec §3
// "Store entry").
func fileList(root string) ([]string, error) {
	return digest.WalkRelative(root)
}

// Prune removes every stored object whose digest is not in keep, returning
// the digests removed (spec §4.3 "Prune").
func Prune(root string, keep map[digestpkg.Digest]bool) ([]digestpkg.Digest, error) {
	var removed []digestpkg.Digest
	algos, err := os.ReadDir(ObjectsRoot(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("STORE_PRUNE: %w", err)
	}
	for _, algoEntry := range algos {
		if !algoEntry.IsDir() {
			continue
		}
		algoDir := filepath.Join(ObjectsRoot(root), algoEntry.Name())
		shards, err := os.ReadDir(algoDir)
		if err != nil {
			return nil, fmt.Errorf("STORE_PRUNE: %w", err)
		}
		for _, shard := range shards {
			shardDir := filepath.Join(algoDir, shard.Name())
			objs, err := os.ReadDir(shardDir)
			if err != nil {
				continue
			}
			for _, obj := range objs {
				d := digestpkg.NewDigestFromEncoded(digestpkg.Algorithm(algoEntry.Name()), obj.Name())
				if keep[d] {
					continue
				}
				if err := os.RemoveAll(filepath.Join(shardDir, obj.Name())); err != nil {
					return removed, fmt.Errorf("STORE_PRUNE: %w", err)
				}
				removed = append(removed, d)
			}
		}
	}
	return removed, nil
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		info, err := os.Lstat(srcPath)
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode.Perm())
}
