package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	forgeexec "github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
)

// ScanOpts holds options for the scan-artifacts command.
type ScanOpts struct {
	// Dir overrides the configured artifacts directory.
	Dir string
}

// Scan walks the artifact directory and locks every step whose artifact
// already exists, then refreshes the dependency matrix. Rescanning an
// unchanged directory reports nothing new.
func Scan(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts ScanOpts, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{}, time.Now)
	if err != nil {
		return err
	}

	dir := opts.Dir
	if dir == "" {
		dir = proj.Cfg.Paths.ArtifactsDir
	}

	result, err := proj.Matrix.ScanArtifacts(ctx, dir)
	if err != nil {
		return err
	}

	for _, l := range result.Locked {
		fmt.Fprintf(stdout, "locked %s (%s)\n", l.StepID, l.Artifact)
	}
	for _, name := range result.Unmatched {
		fmt.Fprintf(stdout, "unmatched: %s\n", name)
	}
	if len(result.Locked) == 0 && len(result.Unmatched) == 0 {
		fmt.Fprintln(stdout, "nothing new to lock")
	}
	return nil
}

// UpdateMatrix regenerates the dependency matrix from the registry and
// current lock state and writes it to the configured path.
func UpdateMatrix(ctx context.Context, fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, stdout io.Writer) error {
	proj, err := LoadProject(fsys, runner, workDir, ProjectOpts{}, time.Now)
	if err != nil {
		return err
	}
	doc, err := proj.Matrix.Regenerate()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "matrix updated: %d steps -> %s\n", len(doc.Entries), proj.Cfg.Paths.MatrixFile)
	return nil
}
