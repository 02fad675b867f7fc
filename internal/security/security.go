// Package security provides path-safety primitives shared by the asset
// scanner and sync engine when materializing package content into a
// workspace (spec §4.6 "Asset scanner", §4.7 "Sync"): no materialized path
// may escape its intended root, whether via ".." segments or a symlink
// planted inside a fetched package tree.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SafeJoin joins base and rel, rejecting any rel that is absolute or that
// would resolve outside base.
func SafeJoin(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("SEC_PATH_TRAVERSAL: absolute path not allowed")
	}
	cleanRel := filepath.Clean(rel)
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("SEC_PATH_TRAVERSAL: path escapes base")
	}
	joined := filepath.Join(base, cleanRel)
	baseClean := filepath.Clean(base)
	joinedClean := filepath.Clean(joined)
	if joinedClean != baseClean {
		prefix := baseClean + string(filepath.Separator)
		if !strings.HasPrefix(joinedClean, prefix) {
			return "", fmt.Errorf("SEC_PATH_TRAVERSAL: path escapes base")
		}
	}
	return joinedClean, nil
}

// ValidateNoSymlinkPath checks each path component under base and denies
// symlink traversal, so a malicious package can't plant a symlink that
// redirects a later materialization write outside the sync target.
func ValidateNoSymlinkPath(base, target string) error {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return fmt.Errorf("SEC_PATH_TRAVERSAL: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("SEC_PATH_TRAVERSAL: path escapes base")
	}
	current := filepath.Clean(base)
	parts := strings.Split(rel, string(filepath.Separator))
	for _, p := range parts {
		if p == "." || p == "" {
			continue
		}
		current = filepath.Join(current, p)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("SEC_SYMLINK_ESCAPE: symlink component %q is not allowed", current)
		}
	}
	return nil
}
