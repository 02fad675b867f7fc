// Package doctor runs workspace health checks: manifest validity,
// lockfile/store consistency, and trust file sanity, surfaced through
// the `botpack doctor` command.
package doctor

import (
	"os"

	digestpkg "github.com/opencontainers/go-digest"

	"github.com/botpack/botpack/internal/lockfile"
	"github.com/botpack/botpack/internal/manifest"
	"github.com/botpack/botpack/internal/store"
	"github.com/botpack/botpack/internal/trust"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"` // "error" or "warn"
	Message string `json:"message"`
}

type Report struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Service holds the paths a doctor run inspects.
type Service struct {
	ManifestPath string
	LockfilePath string
	TrustPath    string
	StoreRoot    string
}

// Run executes every check and aggregates findings. It never returns an
// error itself — a failed check becomes a Finding so the report is
// always complete.
func (s *Service) Run() Report {
	var findings []Finding

	m, err := s.checkManifest()
	if err != nil {
		findings = append(findings, Finding{Code: "DOC_MANIFEST_INVALID", Level: "error", Message: err.Error()})
	}

	lf, err := s.checkLockfile()
	if err != nil {
		findings = append(findings, Finding{Code: "LOCK_INVALID", Level: "error", Message: err.Error()})
	}

	tf, err := trust.Load(s.TrustPath)
	if err != nil {
		findings = append(findings, Finding{Code: "TRUST_INVALID", Level: "error", Message: err.Error()})
	}

	if lf.Packages != nil && s.StoreRoot != "" {
		findings = append(findings, s.checkStoreConsistency(lf)...)
	}

	if m.Dependencies != nil && lf.Dependencies != nil {
		findings = append(findings, diffManifestAgainstLock(m, lf)...)
	}

	_ = tf // trust gating itself is exercised by internal/mcpmerge; doctor only validates the file parses

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	return Report{Healthy: healthy, Findings: findings}
}

func (s *Service) checkManifest() (manifest.Manifest, error) {
	if _, err := os.Stat(s.ManifestPath); err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Load(s.ManifestPath)
}

func (s *Service) checkLockfile() (lockfile.Lockfile, error) {
	if _, err := os.Stat(s.LockfilePath); err != nil {
		if os.IsNotExist(err) {
			return lockfile.Empty(), nil
		}
		return lockfile.Lockfile{}, err
	}
	return lockfile.Load(s.LockfilePath)
}

// checkStoreConsistency verifies every lockfile package's integrity
// digest is actually present (and still hashes correctly) in the store.
func (s *Service) checkStoreConsistency(lf lockfile.Lockfile) []Finding {
	var findings []Finding
	for key, pkg := range lf.Packages {
		if pkg.Integrity == "" {
			continue
		}
		d, err := digestpkg.Parse(pkg.Integrity)
		if err != nil {
			findings = append(findings, Finding{Code: "LOCK_INTEGRITY_MALFORMED", Level: "error", Message: key + ": " + err.Error()})
			continue
		}
		if !store.Has(s.StoreRoot, d) {
			findings = append(findings, Finding{Code: "STORE_MISSING", Level: "error", Message: key + ": not present in store; run `botpack install`"})
			continue
		}
		if err := store.Verify(s.StoreRoot, d); err != nil {
			findings = append(findings, Finding{Code: "STORE_CORRUPT", Level: "error", Message: key + ": " + err.Error()})
			continue
		}
		if _, err := store.LoadMeta(s.StoreRoot, d); err != nil {
			findings = append(findings, Finding{Code: "STORE_META_MISSING", Level: "error", Message: key + ": " + err.Error()})
		}
	}
	return findings
}

// diffManifestAgainstLock warns when a direct dependency in the manifest
// has no corresponding lockfile entry, which usually means `install`
// hasn't been run since the manifest last changed.
func diffManifestAgainstLock(m manifest.Manifest, lf lockfile.Lockfile) []Finding {
	var findings []Finding
	for name := range m.Dependencies {
		if _, ok := lf.Dependencies[name]; !ok {
			findings = append(findings, Finding{
				Code: "LOCK_STALE", Level: "warn",
				Message: name + ": declared in manifest but not in lockfile; run `botpack install`",
			})
		}
	}
	return findings
}
