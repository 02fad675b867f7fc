// Package vstore materializes a resolved package's store object into a
// workspace-local virtual store (spec §4.7 "Sync" / §3 "Virtual store"):
// one directory per "name@version" under the workspace's vstore root,
// linked back to the shared content-addressed store rather than copied,
// so N projects depending on the same package@version share disk.
//
// Link mode follows manifest.SyncPolicy.LinkMode: "auto" tries symlink,
// then hardlink, then falls back to a full copy; "symlink"/"hardlink"/
// "copy" are explicit and fail hard rather than silently degrading.
package vstore

import (
	"fmt"
	"os"
	"path/filepath"

	digestpkg "github.com/opencontainers/go-digest"

	"github.com/botpack/botpack/internal/fsutil"
	"github.com/botpack/botpack/internal/store"
)

const DirName = "pkgs"

// Root returns the workspace-local virtual-store root, e.g. .botpack/pkgs.
func Root(workspaceStateDir string) string {
	return filepath.Join(workspaceStateDir, DirName)
}

// PackageDir returns the virtual-store location for a single resolved
// package, named "<name>@<version>" so collisions between distinct
// versions of the same package can coexist (spec §4.1 "Resolution",
// multi-version coexistence).
func PackageDir(workspaceStateDir, name, version string) string {
	return filepath.Join(Root(workspaceStateDir), name+"@"+version)
}

// Mode is a link strategy for materializing a store object into the
// virtual store.
type Mode string

const (
	Auto     Mode = "auto"
	Symlink  Mode = "symlink"
	Hardlink Mode = "hardlink"
	Copy     Mode = "copy"
)

// ParseMode validates a manifest-supplied link mode string, defaulting to
// Auto when empty so callers don't need to special-case an unset field.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Auto:
		return Auto, nil
	case Symlink, Hardlink, Copy:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("VSTORE_MODE: unknown link mode %q", s)
	}
}

// Link materializes storeRoot's object for digest d at dest, replacing
// whatever was previously there (spec §4.7, atomic restage-then-swap).
// Link creates dest and any missing parent directories.
//
// For Auto, symlink is attempted first, then hardlink, then a full copy;
// an explicit mode fails hard instead of degrading, since the caller
// asked for a specific on-disk representation (e.g. a runtime that can't
// follow symlinks set hardlink or copy deliberately).
func Link(storeRoot string, d digestpkg.Digest, dest string, mode Mode) error {
	objDir := store.PayloadDir(storeRoot, d)
	if !store.Has(storeRoot, d) {
		return fmt.Errorf("VSTORE_MISSING: store object for %s not present", d)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("VSTORE_LINK: %w", err)
	}
	staged := dest + "." + fsutil.UniqueName("stage")

	var linkErr error
	switch mode {
	case Symlink:
		linkErr = os.Symlink(objDir, staged)
	case Hardlink:
		linkErr = hardlinkTree(objDir, staged)
	case Copy:
		linkErr = copyTree(objDir, staged)
	case Auto, "":
		if linkErr = os.Symlink(objDir, staged); linkErr != nil {
			os.RemoveAll(staged)
			if linkErr = hardlinkTree(objDir, staged); linkErr != nil {
				os.RemoveAll(staged)
				linkErr = copyTree(objDir, staged)
			}
		}
	default:
		return fmt.Errorf("VSTORE_MODE: unknown link mode %q", mode)
	}
	if linkErr != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("VSTORE_LINK: %w", linkErr)
	}

	if err := os.RemoveAll(dest); err != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("VSTORE_LINK: %w", err)
	}
	if err := os.Rename(staged, dest); err != nil {
		os.RemoveAll(staged)
		return fmt.Errorf("VSTORE_LINK: %w", err)
	}
	return nil
}

// Unlink removes a package's virtual-store entry, leaving the shared
// store object untouched (spec §4.7 "Sync --clean").
func Unlink(workspaceStateDir, name, version string) error {
	return os.RemoveAll(PackageDir(workspaceStateDir, name, version))
}

// IsLinked reports whether dest currently resolves to storeRoot's object
// for digest d, used by drift detection to decide whether a package's
// virtual-store entry still matches its lockfile pin.
func IsLinked(storeRoot string, d digestpkg.Digest, dest string) bool {
	objDir := store.PayloadDir(storeRoot, d)
	info, err := os.Lstat(dest)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(dest)
		return err == nil && target == objDir
	}
	// Hardlink or copy: verify content rather than identity, since a
	// hardlinked tree has no record of which object it was linked from.
	return store.Has(storeRoot, d) && sameContent(dest, objDir)
}

func hardlinkTree(src, dst string) error {
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
			if err := hardlinkTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := os.Link(srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
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
			data, err := os.ReadFile(srcPath)
			if err != nil {
				return err
			}
			if err := os.WriteFile(dstPath, data, info.Mode().Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func sameContent(a, b string) bool {
	ea, err := os.ReadDir(a)
	if err != nil {
		return false
	}
	eb, err := os.ReadDir(b)
	if err != nil || len(ea) != len(eb) {
		return false
	}
	for _, e := range ea {
		pa := filepath.Join(a, e.Name())
		pb := filepath.Join(b, e.Name())
		ia, erra := os.Lstat(pa)
		ib, errb := os.Lstat(pb)
		if erra != nil || errb != nil {
			return false
		}
		if ia.IsDir() != ib.IsDir() {
			return false
		}
		if ia.IsDir() {
			if !sameContent(pa, pb) {
				return false
			}
			continue
		}
		da, erra := os.ReadFile(pa)
		db, errb := os.ReadFile(pb)
		if erra != nil || errb != nil || string(da) != string(db) {
			return false
		}
	}
	return true
}
