package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/forgeci/forge/internal/errors"
	forgeexec "github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
)

// CheckOpts holds options for the check command.
type CheckOpts struct {
	Step        string
	IgnoreLocks bool
}

// Check reports a step's lock status through the exit code: 0 when the
// step should be rebuilt, 1 when it is locked. Shell steps branch on
// this without parsing output.
func Check(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts CheckOpts, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{IgnoreLocks: opts.IgnoreLocks}, time.Now)
	if err != nil {
		return err
	}
	step, err := proj.step(opts.Step)
	if err != nil {
		return err
	}

	status := proj.Store.Check(step.ID)
	fmt.Fprintf(stdout, "%s: %s\n", step.ID, status)
	if status == lockstore.Locked {
		return errors.Silent(1)
	}
	return nil
}
