// Package executor runs the ordered build phase list.
//
// Execution is strictly sequential: phases run one at a time, each
// blocking until its external command exits. All parallelism lives inside
// the external commands, driven by the resource plan's environment. The
// phase order is the hand-ordered registry list; the dependency matrix is
// never consulted.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forgeci/forge/internal/errors"
	"github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/resource"
	"github.com/forgeci/forge/internal/steps"
)

// Mode selects the failure policy for a run.
type Mode string

const (
	// ModeRequired aborts on the first phase failure; the exit code
	// propagates and no further phases run.
	ModeRequired Mode = "required"

	// ModeBestEffort records phase failures and keeps going. A phase
	// marked Required still aborts the run.
	ModeBestEffort Mode = "best-effort"
)

// Phase outcome states.
const (
	StateSuccess = "success"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

// Outcome is the per-phase result table row.
type Outcome struct {
	StepID   string
	State    string
	Reason   string // skip reason or failure description
	ExitCode int
	Artifact string // artifact used for auto-lock, if any
}

// Report is the result of one full executor run.
type Report struct {
	Outcomes []Outcome

	// ExitCode is 0 when every phase succeeded or was skipped,
	// otherwise the exit code of the first failed phase.
	ExitCode int

	// LogPath is the full build log for this run. The filename embeds
	// the run's timestamp token.
	LogPath string
}

// Failed reports whether any phase failed.
func (r *Report) Failed() bool {
	return r.ExitCode != 0
}

// Config holds the configuration for an executor run.
type Config struct {
	// WorkDir is the project root; prerequisite paths and command cwd
	// resolve against it.
	WorkDir string

	// ScriptsDir holds the phase definition scripts.
	ScriptsDir string

	// ArtifactsDir is checked for already-present artifacts and scanned
	// for auto-lock candidates.
	ArtifactsDir string

	// LogsDir receives the run's build log.
	LogsDir string

	// Plan is the resource plan whose environment is handed to every
	// external command.
	Plan resource.Plan

	// BaseEnv is the parent environment for external commands; the
	// plan's variables are appended to it.
	BaseEnv []string

	// Mode is the failure policy.
	Mode Mode
}

// Deps holds the dependencies for an executor run.
type Deps struct {
	FS     forgefs.FS
	Runner exec.CommandRunner
	Locks  *lockstore.Store
	Stdout io.Writer
	Now    func() time.Time
}

// Run executes the phases in order and returns the per-phase report.
//
// A non-zero phase exit is not a returned error; it is recorded in the
// report so the caller can archive and propagate it. The returned error
// covers conditions that make the run itself invalid: an unopenable log
// file, or a missing hard prerequisite detected before the phase's
// command is invoked.
func Run(ctx context.Context, cfg Config, deps Deps, phases []steps.BuildStep) (*Report, error) {
	startTime := deps.Now().UTC()
	token := startTime.Format(lockstore.TimestampFormat)
	logPath := filepath.Join(cfg.LogsDir, "build_"+token+".log")
	report := &Report{LogPath: logPath}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return report, errors.Wrap(errors.ELogOpenFailed, "failed to create logs directory", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return report, errors.Wrap(errors.ELogOpenFailed, "failed to open build log", err)
	}
	defer logFile.Close()

	_, _ = fmt.Fprintf(logFile, "# forge build log\n")
	_, _ = fmt.Fprintf(logFile, "# timestamp: %s\n", startTime.Format(time.RFC3339))
	_, _ = fmt.Fprintf(logFile, "# mode: %s\n", cfg.Mode)
	_, _ = fmt.Fprintf(logFile, "# jobs: %d (usable_cores=%d mem_limited=%d cache=%dG)\n",
		cfg.Plan.Jobs, cfg.Plan.UsableCores, cfg.Plan.MemLimitedJobs, cfg.Plan.CacheBudgetGB)
	_, _ = fmt.Fprintf(logFile, "# ---\n\n")

	env := append(append([]string(nil), cfg.BaseEnv...), cfg.Plan.Env()...)

	for _, phase := range phases {
		outcome, abort, err := runPhase(ctx, cfg, deps, phase, env, logFile)
		if err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.State == StateFailed && report.ExitCode == 0 {
			report.ExitCode = outcome.ExitCode
		}
		if abort {
			break
		}
	}

	return report, nil
}

// runPhase decides skip/run for one phase. abort is true when the failure
// policy says no further phases may run.
func runPhase(ctx context.Context, cfg Config, deps Deps, phase steps.BuildStep, env []string, logFile *os.File) (Outcome, bool, error) {
	// Skip decisions first: a locked phase or an already-present
	// artifact costs nothing to re-skip, which is what makes reruns
	// after partial failures safe.
	if deps.Locks.Check(phase.ID) == lockstore.Locked {
		return skip(deps, logFile, phase, "locked"), false, nil
	}
	if name, ok := artifactPresent(deps.FS, cfg.ArtifactsDir, phase.ArtifactGlob); ok {
		return skip(deps, logFile, phase, "artifact present: "+name), false, nil
	}

	// Hard prerequisites are checked before the command is invoked and
	// reported distinctly from a command failure.
	scriptPath := filepath.Join(cfg.ScriptsDir, phase.Script)
	if !forgefs.Exists(deps.FS, scriptPath) {
		return Outcome{}, false, errors.NewWithDetails(errors.EScriptNotFound,
			"phase script not found",
			map[string]string{"step": phase.ID, "script": scriptPath})
	}
	for _, req := range phase.Requires {
		reqPath := filepath.Join(cfg.WorkDir, req)
		if !forgefs.Exists(deps.FS, reqPath) {
			return Outcome{}, false, errors.NewWithDetails(errors.EPrereqMissing,
				"hard prerequisite missing for phase "+phase.ID,
				map[string]string{"step": phase.ID, "path": reqPath})
		}
	}

	_, _ = fmt.Fprintf(deps.Stdout, "[run ] %s\n", phase.ID)
	_, _ = fmt.Fprintf(logFile, "\n### phase: %s\n", phase.ID)

	result, err := deps.Runner.Run(ctx, exec.Spec{
		Name:   "sh",
		Args:   []string{"-lc", scriptPath},
		Dir:    cfg.WorkDir,
		Env:    env,
		Stdout: logFile,
		Stderr: logFile,
	})
	if err != nil {
		// Start failure: the command never ran. Recorded as a failed
		// phase with exit 1 rather than poisoning the whole run.
		_, _ = fmt.Fprintf(logFile, "### phase %s failed to start: %v\n", phase.ID, err)
		if result.ExitCode == 0 {
			result.ExitCode = 1
		}
	}

	if result.ExitCode != 0 {
		_, _ = fmt.Fprintf(deps.Stdout, "[fail] %s (exit %d)\n", phase.ID, result.ExitCode)
		_, _ = fmt.Fprintf(logFile, "### phase %s failed with exit %d\n", phase.ID, result.ExitCode)
		outcome := Outcome{
			StepID:   phase.ID,
			State:    StateFailed,
			Reason:   fmt.Sprintf("exit %d", result.ExitCode),
			ExitCode: result.ExitCode,
		}
		abort := cfg.Mode == ModeRequired || phase.Required
		return outcome, abort, nil
	}

	_, _ = fmt.Fprintf(deps.Stdout, "[ ok ] %s\n", phase.ID)
	outcome := Outcome{StepID: phase.ID, State: StateSuccess}

	if phase.AutoLock {
		if name, ok := artifactPresent(deps.FS, cfg.ArtifactsDir, phase.ArtifactGlob); ok {
			if _, err := deps.Locks.Lock(ctx, phase, name); err != nil {
				// Auto-lock is a convenience; its failure must not fail
				// a phase that built successfully.
				_, _ = fmt.Fprintf(deps.Stdout, "[warn] %s: auto-lock failed: %v\n", phase.ID, err)
			} else {
				outcome.Artifact = name
			}
		}
	}

	return outcome, false, nil
}

func skip(deps Deps, logFile *os.File, phase steps.BuildStep, reason string) Outcome {
	_, _ = fmt.Fprintf(deps.Stdout, "[skip] %s (%s)\n", phase.ID, reason)
	_, _ = fmt.Fprintf(logFile, "### phase %s skipped: %s\n", phase.ID, reason)
	return Outcome{StepID: phase.ID, State: StateSkipped, Reason: reason}
}

// artifactPresent reports the newest artifact matching the glob in dir.
func artifactPresent(fsys forgefs.FS, dir, glob string) (string, bool) {
	matches, err := fsys.Glob(filepath.Join(dir, glob))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	newest := matches[0]
	var newestMod time.Time
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = m
			newestMod = info.ModTime()
		}
	}
	return filepath.Base(newest), true
}
