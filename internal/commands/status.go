package commands

import (
	"context"
	"io"
	"time"

	forgeexec "github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/render"
	"github.com/forgeci/forge/internal/strike"
)

// Status prints the per-step status table followed by lock and strike
// totals. The matrix is regenerated first so the table always reflects
// the lock records on disk.
func Status(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{}, time.Now)
	if err != nil {
		return err
	}

	doc, err := proj.Matrix.Regenerate()
	if err != nil {
		return err
	}

	rows := render.StatusRows(doc, proj.Registry.IDs())
	if err := render.WriteStatus(stdout, rows); err != nil {
		return err
	}

	locked := 0
	for _, e := range doc.Entries {
		if e.Status == lockstore.Locked {
			locked++
		}
	}

	ctrl := &strike.Controller{FS: fsys, ArchiveDir: proj.Cfg.Paths.ArchiveDir}
	strikes, err := ctrl.Strikes()
	if err != nil {
		return err
	}

	return render.WriteStatusSummary(stdout, locked, len(doc.Entries), strikes)
}
