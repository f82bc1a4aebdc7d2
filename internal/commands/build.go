package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/forgeci/forge/internal/errors"
	forgeexec "github.com/forgeci/forge/internal/exec"
	"github.com/forgeci/forge/internal/executor"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/resource"
	"github.com/forgeci/forge/internal/strike"
)

// BuildOpts holds options for the build command. Nil resource fields
// defer to forge.yaml, which in turn defers to the planner's tiers.
type BuildOpts struct {
	BestEffort    bool
	IgnoreLocks   bool
	Jobs          *int
	ReservedCores *int
	PerJobMemGB   *int
}

// Build runs the whole pipeline once: plan resources, execute the phases
// in registry order, and on failure archive a curated excerpt and record
// the strike. The failed phase's exit code becomes the process exit code.
func Build(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts BuildOpts, stdout, stderr io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{IgnoreLocks: opts.IgnoreLocks}, time.Now)
	if err != nil {
		return err
	}

	facts := resource.Detect(fsys)
	ov := resource.Overrides{
		Jobs:          firstSet(opts.Jobs, proj.Cfg.Resources.Jobs),
		ReservedCores: firstSet(opts.ReservedCores, proj.Cfg.Resources.ReservedCores),
		PerJobMemGB:   firstSet(opts.PerJobMemGB, proj.Cfg.Resources.PerJobMemGB),
	}
	plan := resource.Compute(facts, ov)
	fmt.Fprintf(stdout, "plan: %d jobs (%d cores usable, mem allows %d), ccache %dG\n",
		plan.Jobs, plan.UsableCores, plan.MemLimitedJobs, plan.CacheBudgetGB)

	mode := executor.ModeRequired
	if opts.BestEffort {
		mode = executor.ModeBestEffort
	}

	ecfg := executor.Config{
		WorkDir:      proj.Cfg.WorkDir,
		ScriptsDir:   proj.Cfg.Paths.ScriptsDir,
		ArtifactsDir: proj.Cfg.Paths.ArtifactsDir,
		LogsDir:      proj.Cfg.Paths.LogsDir,
		Plan:         plan,
		BaseEnv:      os.Environ(),
		Mode:         mode,
	}
	edeps := executor.Deps{
		FS:     fsys,
		Runner: runner,
		Locks:  proj.Store,
		Stdout: stdout,
		Now:    time.Now,
	}

	ctrl := &strike.Controller{
		FS:          fsys,
		ArchiveDir:  proj.Cfg.Paths.ArchiveDir,
		JournalPath: proj.Cfg.Paths.JournalFile,
		StaleGlobs:  proj.Cfg.StaleLockGlobs,
		WorkDir:     proj.Cfg.WorkDir,
		Now:         time.Now,
		Stderr:      stderr,
		Run: func(ctx context.Context) (int, string, error) {
			report, err := executor.Run(ctx, ecfg, edeps, proj.Registry.All())
			if err != nil {
				return 0, "", err
			}
			return report.ExitCode, report.LogPath, nil
		},
	}

	res, err := ctrl.RunOnce(ctx)
	if err != nil {
		return err
	}

	// Refresh the matrix so status reflects any auto-locks taken.
	if err := proj.Matrix.Sync(); err != nil {
		return err
	}

	if res.Succeeded {
		fmt.Fprintf(stdout, "build succeeded (log %s)\n", res.LogPath)
		return nil
	}

	strikes, countErr := ctrl.Strikes()
	if countErr == nil {
		fmt.Fprintf(stderr, "build failed (strike %d, archive %s)\n", strikes, res.ArchivePath)
	}
	return errors.WithExitCode(
		errors.New(errors.EPhaseFailed, fmt.Sprintf("build failed with exit code %d", res.ExitCode)),
		res.ExitCode,
	)
}

func firstSet(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
