package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// LoadPackageManifest reads botpack.pkg.toml from a fetched package tree.
func LoadPackageManifest(packageDir string) (PackageManifest, error) {
	path := filepath.Join(packageDir, PackageManifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return PackageManifest{}, fmt.Errorf("DOC_PKGMANIFEST_READ: %w", err)
	}
	var pm PackageManifest
	if err := toml.Unmarshal(data, &pm); err != nil {
		return PackageManifest{}, fmt.Errorf("DOC_PKGMANIFEST_PARSE: %w", err)
	}
	if pm.Name == "" || pm.Version == "" {
		return PackageManifest{}, fmt.Errorf("DOC_PKGMANIFEST_SCHEMA: package manifest missing name/version")
	}
	return pm, nil
}

// SavePackageManifest writes a package manifest into packageDir; tests use
// it to construct package fixtures.
func SavePackageManifest(packageDir string, pm PackageManifest) error {
	blob, err := toml.Marshal(pm)
	if err != nil {
		return fmt.Errorf("DOC_PKGMANIFEST_ENCODE: %w", err)
	}
	return os.WriteFile(filepath.Join(packageDir, PackageManifestFilename), blob, 0o644)
}
