// Package lockstore persists per-step lock records and versioned backups.
// A lock declares a step's output golden: the executor skips locked steps
// and the record protects the definition from accidental rebuilds.
//
// Records are one JSON file per locked step, co-located with the step's
// definition script and written atomically via temp file + rename.
package lockstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/forgeci/forge/internal/errors"
	"github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/steps"
)

// SchemaVersion is the lock record schema version.
const SchemaVersion = "1.0"

// TimestampFormat is the filesystem-safe timestamp token format shared by
// backups and build logs.
const TimestampFormat = "20060102_150405"

// Status is a step's lock state.
type Status string

const (
	Locked   Status = "locked"
	Unlocked Status = "unlocked"
)

// LockRecord is the persisted lock for one step.
type LockRecord struct {
	SchemaVersion string `json:"schema_version"`
	StepID        string `json:"step_id"`
	LockedAt      string `json:"locked_at"` // RFC3339
	Fingerprint   string `json:"fingerprint"`
	BackupPath    string `json:"backup_path"`
	ArtifactName  string `json:"artifact_name,omitempty"`
}

// MatrixSyncer rebuilds the persisted dependency matrix from live lock
// state. The matrix package implements it; the store only knows this
// one-method view to keep the dependency direction clean.
type MatrixSyncer interface {
	Sync() error
}

// Store is the artifact lock store.
type Store struct {
	fsys       forgefs.FS
	runner     exec.CommandRunner
	scriptsDir string
	backupsDir string
	bypass     bool
	now        func() time.Time

	matrix MatrixSyncer // optional; wired after construction
}

// New creates a Store. bypass forces Check to report Unlocked for every
// step (maintenance/rebuild flows). now is injectable for deterministic
// tests.
func New(fsys forgefs.FS, runner exec.CommandRunner, scriptsDir, backupsDir string, bypass bool, now func() time.Time) *Store {
	return &Store{
		fsys:       fsys,
		runner:     runner,
		scriptsDir: scriptsDir,
		backupsDir: backupsDir,
		bypass:     bypass,
		now:        now,
	}
}

// SetMatrixSyncer wires the dependency matrix refresh hook. Wired after
// construction because the matrix itself queries the store.
func (s *Store) SetMatrixSyncer(m MatrixSyncer) {
	s.matrix = m
}

// RecordPath returns the lock record path for a step:
// <scripts_dir>/<step_id>.lock.json, next to the step's definition.
func (s *Store) RecordPath(stepID string) string {
	return filepath.Join(s.scriptsDir, stepID+".lock.json")
}

// ScriptPath returns the absolute path of a step's definition script.
func (s *Store) ScriptPath(step steps.BuildStep) string {
	return filepath.Join(s.scriptsDir, step.Script)
}

// Check reports the lock status for a step. The bypass flag forces
// Unlocked for all steps.
func (s *Store) Check(stepID string) Status {
	if s.bypass {
		return Unlocked
	}
	if forgefs.Exists(s.fsys, s.RecordPath(stepID)) {
		return Locked
	}
	return Unlocked
}

// Record reads the lock record for a step. ok is false when the step is
// unlocked. An unreadable record is E_STORE_CORRUPT.
func (s *Store) Record(stepID string) (rec LockRecord, ok bool, err error) {
	path := s.RecordPath(stepID)
	if !forgefs.Exists(s.fsys, path) {
		return LockRecord{}, false, nil
	}
	data, err := s.fsys.ReadFile(path)
	if err != nil {
		return LockRecord{}, false, errors.Wrap(errors.EStoreCorrupt, "failed to read lock record for "+stepID, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return LockRecord{}, false, errors.Wrap(errors.EStoreCorrupt, "invalid lock record for "+stepID, err)
	}
	return rec, true, nil
}

// Lock locks a step. Idempotent: if the step is already locked the
// existing record is returned unchanged and no new backup is taken.
// Otherwise the step's definition is fingerprinted, snapshotted into the
// backup directory keyed {stepId}_{timestamp}_{fingerprint}, the record is
// written, and the dependency matrix is refreshed.
func (s *Store) Lock(ctx context.Context, step steps.BuildStep, artifactName string) (LockRecord, error) {
	if existing, ok, err := s.Record(step.ID); err != nil {
		return LockRecord{}, err
	} else if ok {
		return existing, nil
	}

	scriptPath := s.ScriptPath(step)
	if !forgefs.Exists(s.fsys, scriptPath) {
		return LockRecord{}, errors.NewWithDetails(errors.EDefinitionMissing,
			"step definition script not found",
			map[string]string{"step": step.ID, "script": scriptPath})
	}

	fingerprint := s.fingerprint(ctx, step)
	lockedAt := s.now().UTC()

	backupPath, err := s.backup(step, scriptPath, lockedAt, fingerprint)
	if err != nil {
		return LockRecord{}, err
	}

	rec := LockRecord{
		SchemaVersion: SchemaVersion,
		StepID:        step.ID,
		LockedAt:      lockedAt.Format(time.RFC3339),
		Fingerprint:   fingerprint,
		BackupPath:    backupPath,
		ArtifactName:  artifactName,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return LockRecord{}, errors.Wrap(errors.ELockWriteFailed, "failed to encode lock record", err)
	}
	if err := forgefs.WriteFileAtomic(s.fsys, s.RecordPath(step.ID), data, 0o644); err != nil {
		return LockRecord{}, errors.Wrap(errors.ELockWriteFailed, "failed to write lock record for "+step.ID, err)
	}

	if err := s.syncMatrix(); err != nil {
		return rec, err
	}
	return rec, nil
}

// Unlock removes a step's lock. No-op if the step is already unlocked.
// Backups are kept; only the record is deleted.
func (s *Store) Unlock(stepID string) error {
	path := s.RecordPath(stepID)
	if !forgefs.Exists(s.fsys, path) {
		return nil
	}
	if err := s.fsys.Remove(path); err != nil {
		return errors.Wrap(errors.ELockWriteFailed, "failed to remove lock record for "+stepID, err)
	}
	return s.syncMatrix()
}

// backup copies the step's definition into
// <backups_dir>/<stepId>_<timestamp>_<fingerprint>/.
func (s *Store) backup(step steps.BuildStep, scriptPath string, at time.Time, fingerprint string) (string, error) {
	dir := filepath.Join(s.backupsDir, step.ID+"_"+at.Format(TimestampFormat)+"_"+fingerprint)
	if err := s.fsys.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.EBackupFailed, "failed to create backup dir for "+step.ID, err)
	}
	content, err := s.fsys.ReadFile(scriptPath)
	if err != nil {
		return "", errors.Wrap(errors.EBackupFailed, "failed to read definition for "+step.ID, err)
	}
	dst := filepath.Join(dir, filepath.Base(scriptPath))
	if err := s.fsys.WriteFile(dst, content, 0o755); err != nil {
		return "", errors.Wrap(errors.EBackupFailed, "failed to write backup for "+step.ID, err)
	}
	return dir, nil
}

func (s *Store) syncMatrix() error {
	if s.matrix == nil {
		return nil
	}
	if err := s.matrix.Sync(); err != nil {
		return errors.Wrap(errors.EMatrixWriteFailed, "failed to refresh dependency matrix", err)
	}
	return nil
}
