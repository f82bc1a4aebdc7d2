package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	forgeexec "github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
)

// LockOpts holds options for the lock command.
type LockOpts struct {
	// Step is the step id to lock.
	Step string

	// Artifact optionally records the artifact filename the lock
	// certifies. Empty is allowed for manual locks.
	Artifact string

	IgnoreLocks bool
}

// Lock locks a step definition, taking a versioned backup of its script
// on the first lock. Locking an already-locked step is a no-op and
// reports the existing lock.
func Lock(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts LockOpts, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{IgnoreLocks: opts.IgnoreLocks}, time.Now)
	if err != nil {
		return err
	}
	step, err := proj.step(opts.Step)
	if err != nil {
		return err
	}

	already := proj.Store.Check(step.ID) == lockstore.Locked
	rec, err := proj.Store.Lock(ctx, step, opts.Artifact)
	if err != nil {
		return err
	}

	if already {
		fmt.Fprintf(stdout, "%s already locked since %s (fingerprint %s)\n", step.ID, rec.LockedAt, rec.Fingerprint)
		return nil
	}
	fmt.Fprintf(stdout, "locked %s (fingerprint %s, backup %s)\n", step.ID, rec.Fingerprint, rec.BackupPath)
	return nil
}

// UnlockOpts holds options for the unlock command.
type UnlockOpts struct {
	Step string
}

// Unlock removes a step's lock so the pipeline rebuilds it. Unlocking an
// unlocked step is a no-op. Backups are never removed.
func Unlock(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts UnlockOpts, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{}, time.Now)
	if err != nil {
		return err
	}
	step, err := proj.step(opts.Step)
	if err != nil {
		return err
	}

	if proj.Store.Check(step.ID) == lockstore.Unlocked {
		fmt.Fprintf(stdout, "%s is not locked\n", step.ID)
		return nil
	}
	if err := proj.Store.Unlock(step.ID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "unlocked %s\n", step.ID)
	return nil
}
