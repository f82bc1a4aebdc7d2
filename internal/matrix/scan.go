package matrix

import (
	"context"
	"os"

	"github.com/forgeci/forge/internal/lockstore"
)

// ScanResult reports what an artifact scan did.
type ScanResult struct {
	// Locked lists (stepID, artifact) pairs locked by this scan.
	Locked []ScanLock

	// Unmatched lists artifact filenames no prefix rule claimed.
	Unmatched []string
}

// ScanLock is one lock taken during a scan.
type ScanLock struct {
	StepID   string
	Artifact string
}

// ScanArtifacts walks the artifact directory and locks every step whose
// artifact is already present. Each filename is resolved through the
// ordered prefix rule table (first match wins); a matched step is locked
// with that filename only if it is currently unlocked, so re-scanning an
// unchanged directory takes no new locks and no new backups. The matrix
// is regenerated after the scan.
func (m *Manager) ScanArtifacts(ctx context.Context, dir string) (ScanResult, error) {
	var result ScanResult

	entries, err := m.fsys.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return ScanResult{}, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stepID, ok := m.registry.MatchArtifact(name)
		if !ok {
			result.Unmatched = append(result.Unmatched, name)
			continue
		}
		if m.store.Check(stepID) == lockstore.Locked {
			continue
		}
		step, ok := m.registry.Get(stepID)
		if !ok {
			continue
		}
		if _, err := m.store.Lock(ctx, step, name); err != nil {
			return ScanResult{}, err
		}
		result.Locked = append(result.Locked, ScanLock{StepID: stepID, Artifact: name})
	}

	if _, err := m.Regenerate(); err != nil {
		return ScanResult{}, err
	}
	return result, nil
}
