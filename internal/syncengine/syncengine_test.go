package syncengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/botpack/botpack/internal/assets"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/targets"
)

func writeSrcSkill(t *testing.T, srcDir, id string) {
	t.Helper()
	dir := filepath.Join(srcDir, "skills", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# "+id+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestComputePlanBasicSkill(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "acme-reviewer")
	writeSrcSkill(t, pkgSrc, "x")

	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")

	plan, err := ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	var linkOp *Op
	for i := range plan.Ops {
		if plan.Ops[i].Kind == OpLink {
			linkOp = &plan.Ops[i]
		}
	}
	if linkOp == nil {
		t.Fatal("expected a LINK op for the scanned skill")
	}
	wantDest := filepath.Join(ws, ".claude", "skills", "acme-reviewer.x")
	if linkOp.Dest != wantDest {
		t.Fatalf("Dest = %q, want %q", linkOp.Dest, wantDest)
	}
}

func TestComputePlanDetectsCollision(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "pkg")
	writeSrcSkill(t, pkgSrc, "x")
	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")

	_, err = ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
			{PkgKey: "acme/reviewer@2.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err == nil {
		t.Fatal("expected a collision error for two packages producing the same output name")
	}
}

func TestComputePlanRespectsAlias(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "pkg")
	writeSrcSkill(t, pkgSrc, "x")
	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")

	plan, err := ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		Aliases:        manifest.AliasConfig{Skills: map[string]string{"x": "reviewer"}},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err != nil {
		t.Fatalf("ComputePlan: %v", err)
	}
	found := false
	want := filepath.Join(ws, ".claude", "skills", "reviewer")
	for _, op := range plan.Ops {
		if op.Kind == OpLink && op.Dest == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected aliased dest %q among ops %+v", want, plan.Ops)
	}
}

func TestApplyStagesAndSwaps(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "pkg")
	writeSrcSkill(t, pkgSrc, "x")
	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")
	plan, err := ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err != nil {
		t.Fatal(err)
	}
	targetRoot := filepath.Join(ws, ".claude")
	state, err := Apply(targetRoot, plan, TargetState{}, ApplyOptions{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(state.Entries) != 1 {
		t.Fatalf("expected 1 state entry, got %d", len(state.Entries))
	}
	content, err := os.ReadFile(filepath.Join(targetRoot, "skills", "acme-reviewer.x"))
	if err != nil || string(content) != "# x\n" {
		t.Fatalf("unexpected materialized content %q err=%v", content, err)
	}
	if _, err := os.Stat(targetRoot + ".new"); !os.IsNotExist(err) {
		t.Fatal("expected staging dir to be gone after swap")
	}
}

func TestApplyDetectsDriftWithoutForce(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "pkg")
	writeSrcSkill(t, pkgSrc, "x")
	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")
	plan, err := ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err != nil {
		t.Fatal(err)
	}
	targetRoot := filepath.Join(ws, ".claude")
	state, err := Apply(targetRoot, plan, TargetState{}, ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	tampered := filepath.Join(targetRoot, "skills", "acme-reviewer.x")
	if err := os.WriteFile(tampered, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(targetRoot, plan, state, ApplyOptions{}); err == nil {
		t.Fatal("expected drift to be rejected without --force")
	}
	if _, err := Apply(targetRoot, plan, state, ApplyOptions{Force: true}); err != nil {
		t.Fatalf("expected --force to override drift: %v", err)
	}
}

func TestApplyDryRunWritesNothing(t *testing.T) {
	ws := t.TempDir()
	pkgSrc := filepath.Join(t.TempDir(), "pkg")
	writeSrcSkill(t, pkgSrc, "x")
	idx, err := assets.Scan(pkgSrc, "acme/reviewer@1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	reg := targets.NewRegistry()
	claude, _ := reg.Get("claude")
	plan, err := ComputePlan(PlanInput{
		WorkspaceRoot: ws,
		Target:        claude,
		Packages: []PackageAssets{
			{PkgKey: "acme/reviewer@1.0.0", PkgName: "acme/reviewer", Index: idx},
		},
		AssetSourceDir: func(pkgKey string) string { return pkgSrc },
	})
	if err != nil {
		t.Fatal(err)
	}
	targetRoot := filepath.Join(ws, ".claude")
	if _, err := Apply(targetRoot, plan, TargetState{}, ApplyOptions{DryRun: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := os.Stat(targetRoot); !os.IsNotExist(err) {
		t.Fatal("expected dry-run to write nothing")
	}
}
