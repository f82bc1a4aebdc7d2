package lockstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/forgeci/forge/internal/steps"
)

// UnknownFingerprint is recorded when no fingerprint source is available.
const UnknownFingerprint = "unknown"

// fingerprint resolves a content/version hash for a step's definition.
// Resolution order: version-control short revision for the definition
// file, then content hash (first 8 hex chars), then "unknown".
func (s *Store) fingerprint(ctx context.Context, step steps.BuildStep) string {
	if rev, err := s.runner.Output(ctx, s.scriptsDir,
		"git", "log", "-1", "--format=%h", "--", step.Script); err == nil && rev != "" {
		return rev
	}

	content, err := s.fsys.ReadFile(s.ScriptPath(step))
	if err != nil {
		return UnknownFingerprint
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:8]
}
