// Package syncengine plans and applies the materialization of scanned
// assets into a target's directory layout (spec §4.7 "Sync engine"):
// compute a list of operations, detect drift and collisions, then apply
// atomically via stage-then-swap.
package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/botpack/botpack/internal/assets"
	"github.com/botpack/botpack/internal/fsutil"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/targets"
	"github.com/botpack/botpack/internal/vstore"
)

// OpKind is one step of a sync plan.
type OpKind string

const (
	OpCreateDir OpKind = "CREATE_DIR"
	OpLink      OpKind = "LINK"
	OpWriteFile OpKind = "WRITE_FILE"
	OpRemove    OpKind = "REMOVE"
)

// Op is one planned filesystem operation (spec §4.7 "Plan"). Dest is a
// full path under the target's directory (workspace root included); Apply
// maps it into the staging root by its path relative to the target root.
type Op struct {
	Kind    OpKind
	Dest    string // full destination path under the target root
	Src     string // LINK: absolute store/vstore path of the source file; Apply copies its bytes to Dest and creates no link
	Content []byte // WRITE_FILE
}

// PackageAssets pairs one resolved package's scanned assets with its
// owning key, "" for the workspace's own local assets.
type PackageAssets struct {
	PkgKey  string // "name@version", "" for workspace-local
	PkgName string // bare name, "" for workspace-local
	Index   assets.Index
}

// PlanInput carries everything the planner needs for one target.
type PlanInput struct {
	WorkspaceRoot string
	Target        targets.Target
	Packages      []PackageAssets
	Aliases       manifest.AliasConfig
	// AssetSourceDir resolves where an asset's backing file actually
	// lives on disk, keyed by (pkgKey, asset path) — normally the
	// package's virtual-store directory.
	AssetSourceDir func(pkgKey string) string
}

// Plan is the computed set of operations for one target.
type Plan struct {
	TargetName string
	Ops        []Op
}

// scopeName turns a package name into the "<scope-name>" prefix used by
// default output naming (spec §4.7: "scope slash replaced by dash").
func scopeName(pkgName string) string {
	return strings.ReplaceAll(pkgName, "/", "-")
}

func defaultAssetName(pkgName, id string) string {
	if pkgName == "" {
		return id
	}
	return scopeName(pkgName) + "." + id
}

func aliasFor(aliases map[string]string, id, fallback string) string {
	if aliases == nil {
		return fallback
	}
	if v, ok := aliases[id]; ok {
		return v
	}
	return fallback
}

// ComputePlan computes the operation list for one target, detecting
// fqid-style path collisions (spec §4.7 "Collision rule").
func ComputePlan(in PlanInput) (Plan, error) {
	plan := Plan{TargetName: in.Target.Name}
	claimed := map[string]string{} // dest path -> description, for collision reporting

	addAsset := func(rootDir string, aliasTable map[string]string, pkgName string, a assets.Asset, srcDir string) error {
		if rootDir == "" {
			return nil // target doesn't support this asset kind (e.g. droid has no commands)
		}
		name := defaultAssetName(pkgName, a.ID)
		name = aliasFor(aliasTable, a.ID, name)
		dest := filepath.Join(rootDir, name)
		if prior, ok := claimed[dest]; ok {
			return fmt.Errorf("SYNC_COLLISION: %q already planned by %s", dest, prior)
		}
		claimed[dest] = fmt.Sprintf("%s:%s", a.Package, a.ID)
		plan.Ops = append(plan.Ops, Op{Kind: OpLink, Dest: dest, Src: filepath.Join(srcDir, a.Path)})
		return nil
	}

	skillsRoot := in.Target.SkillsRoot(in.WorkspaceRoot)
	commandsRoot := in.Target.CommandsRoot(in.WorkspaceRoot)
	agentsRoot := in.Target.AgentsRoot(in.WorkspaceRoot)

	for _, pkg := range in.Packages {
		srcDir := ""
		if in.AssetSourceDir != nil {
			srcDir = in.AssetSourceDir(pkg.PkgKey)
		}
		for _, a := range pkg.Index.Assets {
			var rootDir string
			var aliasTable map[string]string
			switch a.Kind {
			case assets.KindSkill:
				rootDir, aliasTable = skillsRoot, in.Aliases.Skills
			case assets.KindCommand:
				rootDir, aliasTable = commandsRoot, in.Aliases.Commands
			case assets.KindAgent:
				rootDir, aliasTable = agentsRoot, in.Aliases.Agents
			default:
				continue // mcp/policy are handled by internal/mcpmerge and not linked here
			}
			if err := addAsset(rootDir, aliasTable, pkg.PkgName, a, srcDir); err != nil {
				return Plan{}, err
			}
		}
	}

	dirs := map[string]bool{}
	for _, op := range plan.Ops {
		dirs[filepath.Dir(op.Dest)] = true
	}
	dirList := make([]string, 0, len(dirs))
	for d := range dirs {
		dirList = append(dirList, d)
	}
	sort.Strings(dirList)
	dirOps := make([]Op, 0, len(dirList))
	for _, d := range dirList {
		dirOps = append(dirOps, Op{Kind: OpCreateDir, Dest: d})
	}
	sort.Slice(plan.Ops, func(i, j int) bool { return plan.Ops[i].Dest < plan.Ops[j].Dest })
	plan.Ops = append(dirOps, plan.Ops...)
	return plan, nil
}

// StateEntry records one materialized path's provenance and content
// checksum, used for next run's drift detection (spec §3 "Sync state").
type StateEntry struct {
	Path         string `json:"path"`
	AssetAddress string `json:"assetAddress"`
	Checksum     string `json:"checksum"`
}

// TargetState is one target's persisted sync state.
type TargetState struct {
	ToolVersion string       `json:"toolVersion"`
	ConfigHash  string       `json:"configHash"`
	Entries     []StateEntry `json:"entries"`
}

// State is the full per-workspace sync state document, keyed by target
// name.
type State struct {
	Targets map[string]TargetState `json:"targets"`
}

// DriftDetect compares prior's recorded checksums against what's
// currently on disk at each recorded path (spec §4.7 "Drift detection").
// A path whose on-disk checksum no longer matches is a conflict.
func DriftDetect(targetRoot string, prior TargetState) (conflicts []string, err error) {
	for _, e := range prior.Entries {
		abs := filepath.Join(targetRoot, e.Path)
		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				conflicts = append(conflicts, e.Path) // removed out-of-band
				continue
			}
			return nil, readErr
		}
		if checksum(data) != e.Checksum {
			conflicts = append(conflicts, e.Path)
		}
	}
	return conflicts, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ApplyOptions controls one apply pass.
type ApplyOptions struct {
	DryRun   bool
	Clean    bool // include REMOVE ops for paths in prior state not in the new plan
	Force    bool // apply even when DriftDetect found conflicts
	LinkMode vstore.Mode // not read by Apply: LINK ops are always written as copies
}

// Apply materializes plan under targetRoot using the stage-then-swap
// protocol (spec §4.7 "Apply (atomic)"). It returns the new TargetState
// to persist on success.
func Apply(targetRoot string, plan Plan, prior TargetState, opts ApplyOptions) (TargetState, error) {
	if opts.DryRun {
		return prior, nil
	}

	if !opts.Force {
		conflicts, err := DriftDetect(targetRoot, prior)
		if err != nil {
			return TargetState{}, fmt.Errorf("SYNC_DRIFT: %w", err)
		}
		if len(conflicts) > 0 {
			return TargetState{}, fmt.Errorf("SYNC_CONFLICT: materialized content changed out-of-band for %v; rerun with --force to overwrite", conflicts)
		}
	}

	stageRoot := targetRoot + ".new"
	if err := os.RemoveAll(stageRoot); err != nil {
		return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
	}
	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
	}

	// Seed the stage with whatever's already at targetRoot so files the
	// plan doesn't touch (hand-edited or unmanaged content) survive the
	// swap. --clean then strips prior managed entries absent from the
	// new plan instead of this full copy skipping them outright, since
	// the previous-state bookkeeping only covers paths sync itself wrote.
	if _, err := os.Stat(targetRoot); err == nil {
		if err := copyExistingTree(targetRoot, stageRoot); err != nil {
			os.RemoveAll(stageRoot)
			return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
		}
	}

	var entries []StateEntry
	plannedPaths := map[string]bool{}
	for _, op := range plan.Ops {
		relDest, err := filepath.Rel(targetRoot, op.Dest)
		if err != nil {
			relDest = op.Dest
		}
		stageDest := filepath.Join(stageRoot, relDest)
		switch op.Kind {
		case OpCreateDir:
			if err := os.MkdirAll(stageDest, 0o755); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
		case OpLink:
			if err := os.MkdirAll(filepath.Dir(stageDest), 0o755); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
			data, err := os.ReadFile(op.Src)
			if err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
			if err := os.WriteFile(stageDest, data, 0o644); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
			entries = append(entries, StateEntry{Path: relDest, AssetAddress: op.Src, Checksum: checksum(data)})
			plannedPaths[relDest] = true
		case OpWriteFile:
			if err := os.MkdirAll(filepath.Dir(stageDest), 0o755); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
			if err := os.WriteFile(stageDest, op.Content, 0o644); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
			entries = append(entries, StateEntry{Path: relDest, AssetAddress: "generated", Checksum: checksum(op.Content)})
			plannedPaths[relDest] = true
		}
	}

	if opts.Clean {
		for _, e := range prior.Entries {
			if plannedPaths[e.Path] {
				continue
			}
			if err := os.RemoveAll(filepath.Join(stageRoot, e.Path)); err != nil {
				os.RemoveAll(stageRoot)
				return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
			}
		}
	}

	if err := fsutil.FsyncTree(stageRoot); err != nil {
		os.RemoveAll(stageRoot)
		return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
	}

	oldRoot := targetRoot + ".old"
	os.RemoveAll(oldRoot)
	hadPrior := false
	if _, err := os.Stat(targetRoot); err == nil {
		hadPrior = true
		if err := os.Rename(targetRoot, oldRoot); err != nil {
			os.RemoveAll(stageRoot)
			return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
		}
	}
	if err := os.Rename(stageRoot, targetRoot); err != nil {
		if hadPrior {
			os.Rename(oldRoot, targetRoot) // roll back
		}
		return TargetState{}, fmt.Errorf("SYNC_APPLY: %w", err)
	}
	if hadPrior {
		os.RemoveAll(oldRoot)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return TargetState{ToolVersion: prior.ToolVersion, ConfigHash: prior.ConfigHash, Entries: entries}, nil
}

// copyExistingTree copies src into dst, preserving symlinks as symlinks,
// so a fresh stage can start from whatever's already materialized.
func copyExistingTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if rel == "." {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

// CleanupStale removes leftover `*.new`/`*.old` paths from an
// interrupted prior run (spec §5 "Cancellation": "cleanup logic removes
// *.tmp-* and *.old paths").
func CleanupStale(targetRoot string) error {
	for _, suffix := range []string{".new", ".old"} {
		if err := os.RemoveAll(targetRoot + suffix); err != nil {
			return err
		}
	}
	return nil
}
