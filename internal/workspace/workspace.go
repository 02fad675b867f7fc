// Package workspace resolves the workspace root directory (spec §3
// "Workspace root"): the directory containing the project manifest and
// the generated .botpack state subdirectory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"

	"github.com/botpack/botpack/internal/manifest"
)

// StateDirName is the generated state subdirectory's conventional name.
const StateDirName = ".botpack"

const profileEnvVar = "BOTPACK_PROFILE"
const rootEnvVar = "BOTPACK_ROOT"

// ResolveOptions carries every input to root resolution, in descending
// precedence (spec §3: "explicit flag > named global profile > env var >
// parent search for the manifest filename > current directory").
type ResolveOptions struct {
	ExplicitFlag string // --root/-C flag value, "" if unset
	ProfileName  string // --profile flag value, "" if unset
	StartDir     string // directory to search upward from; "" means cwd
}

// Resolve implements the precedence chain and returns the resolved
// workspace root (the directory containing botpack.toml).
func Resolve(opts ResolveOptions) (string, error) {
	if opts.ExplicitFlag != "" {
		abs, err := filepath.Abs(opts.ExplicitFlag)
		if err != nil {
			return "", fmt.Errorf("WS_ROOT: %w", err)
		}
		return abs, nil
	}

	profileName := opts.ProfileName
	if profileName == "" {
		profileName = os.Getenv(profileEnvVar)
	}
	if profileName != "" {
		root, err := profileRoot(profileName)
		if err != nil {
			return "", err
		}
		if root != "" {
			return root, nil
		}
	}

	if v := os.Getenv(rootEnvVar); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return "", fmt.Errorf("WS_ROOT: %w", err)
		}
		return abs, nil
	}

	start := opts.StartDir
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("WS_ROOT: %w", err)
		}
		start = cwd
	}
	if found, ok := searchUpward(start); ok {
		return found, nil
	}
	return filepath.Abs(start)
}

// searchUpward walks from dir to the filesystem root looking for
// manifest.DefaultManifestFilename.
func searchUpward(dir string) (string, bool) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(cur, manifest.DefaultManifestFilename)
		if _, err := os.Stat(candidate); err == nil {
			return cur, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
	}
}

// profiles.toml lives under the XDG config home and maps a named global
// profile to a workspace root, so a user can run `botpack --profile work
// sync` from anywhere.
type profilesFile struct {
	Profiles map[string]string `toml:"profiles"`
}

func profilesPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("botpack", "profiles.toml"))
}

func profileRoot(name string) (string, error) {
	path, err := profilesPath()
	if err != nil {
		return "", fmt.Errorf("WS_PROFILE: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("WS_PROFILE: profile %q not found: no profiles file at %s", name, path)
		}
		return "", fmt.Errorf("WS_PROFILE: %w", err)
	}
	var pf profilesFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return "", fmt.Errorf("WS_PROFILE: %w", err)
	}
	root, ok := pf.Profiles[name]
	if !ok {
		return "", fmt.Errorf("WS_PROFILE: profile %q not found in %s", name, path)
	}
	return root, nil
}

// SetProfile records or updates a named profile's workspace root.
func SetProfile(name, root string) error {
	path, err := profilesPath()
	if err != nil {
		return fmt.Errorf("WS_PROFILE: %w", err)
	}
	data, err := os.ReadFile(path)
	var pf profilesFile
	if err == nil {
		if unmarshalErr := toml.Unmarshal(data, &pf); unmarshalErr != nil {
			return fmt.Errorf("WS_PROFILE: %w", unmarshalErr)
		}
	}
	if pf.Profiles == nil {
		pf.Profiles = map[string]string{}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("WS_PROFILE: %w", err)
	}
	pf.Profiles[name] = abs
	blob, err := toml.Marshal(pf)
	if err != nil {
		return fmt.Errorf("WS_PROFILE: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WS_PROFILE: %w", err)
	}
	return os.WriteFile(path, blob, 0o644)
}

// StateDir returns the workspace's generated state directory.
func StateDir(root string) string { return filepath.Join(root, StateDirName) }

// ManifestPath returns the workspace's manifest file path.
func ManifestPath(root string) string {
	return filepath.Join(root, manifest.DefaultManifestFilename)
}
