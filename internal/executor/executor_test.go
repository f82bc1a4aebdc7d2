package executor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	forgeerrors "github.com/forgeci/forge/internal/errors"
	"github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/resource"
	"github.com/forgeci/forge/internal/steps"
)

// harness wires an executor over a temp tree with two phases.
type harness struct {
	cfg    Config
	deps   Deps
	phases []steps.BuildStep
	stdout *bytes.Buffer
	locks  *lockstore.Store
}

func newHarness(t *testing.T, runner exec.CommandRunner) *harness {
	t.Helper()
	dir := t.TempDir()
	scriptsDir := filepath.Join(dir, "scripts")
	artifactsDir := filepath.Join(dir, "dist")
	for _, d := range []string{scriptsDir, artifactsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	phases := []steps.BuildStep{
		{ID: "alpha", Script: "build_alpha.sh", ArtifactGlob: "alpha-*.whl"},
		{ID: "beta", Script: "build_beta.sh", ArtifactGlob: "beta-*.whl"},
	}
	for _, p := range phases {
		if err := os.WriteFile(filepath.Join(scriptsDir, p.Script), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	now := func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	fsys := forgefs.NewRealFS()
	locks := lockstore.New(fsys, &exec.FakeRunner{}, scriptsDir, filepath.Join(dir, "backups"), false, now)
	stdout := &bytes.Buffer{}

	return &harness{
		cfg: Config{
			WorkDir:      dir,
			ScriptsDir:   scriptsDir,
			ArtifactsDir: artifactsDir,
			LogsDir:      filepath.Join(dir, "logs"),
			Plan:         resource.Plan{Jobs: 4, UsableCores: 4, MemLimitedJobs: 4, CacheBudgetGB: 20},
			Mode:         ModeRequired,
		},
		deps: Deps{
			FS:     fsys,
			Runner: runner,
			Locks:  locks,
			Stdout: stdout,
			Now:    now,
		},
		phases: phases,
		stdout: stdout,
		locks:  locks,
	}
}

// exitWith returns a runner failing commands whose script contains match.
func exitWith(match string, code int) *exec.FakeRunner {
	return &exec.FakeRunner{
		RunFunc: func(_ context.Context, spec exec.Spec) (exec.Result, error) {
			for _, arg := range spec.Args {
				if strings.Contains(arg, match) {
					return exec.Result{ExitCode: code}, nil
				}
			}
			return exec.Result{ExitCode: 0}, nil
		},
	}
}

func TestRun_AllPhasesSucceed(t *testing.T) {
	h := newHarness(t, &exec.FakeRunner{})

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Failed() {
		t.Errorf("ExitCode = %d, want 0", report.ExitCode)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcome count = %d, want 2", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.State != StateSuccess {
			t.Errorf("%s state = %q, want success", o.StepID, o.State)
		}
	}

	// Log filename embeds the run's timestamp token.
	if got := filepath.Base(report.LogPath); got != "build_20260101_120000.log" {
		t.Errorf("log name = %q", got)
	}
	if _, err := os.Stat(report.LogPath); err != nil {
		t.Errorf("build log missing: %v", err)
	}
}

func TestRun_EnvironmentCarriesPlan(t *testing.T) {
	var seenEnv []string
	runner := &exec.FakeRunner{
		RunFunc: func(_ context.Context, spec exec.Spec) (exec.Result, error) {
			seenEnv = spec.Env
			return exec.Result{}, nil
		},
	}
	h := newHarness(t, runner)
	h.cfg.BaseEnv = []string{"PATH=/usr/bin"}
	h.cfg.Plan = resource.Compute(resource.Facts{Cores: 8, MemGB: 16}, resource.Overrides{})

	if _, err := Run(context.Background(), h.cfg, h.deps, h.phases[:1]); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	joined := strings.Join(seenEnv, "\n")
	if !strings.Contains(joined, "PATH=/usr/bin") {
		t.Error("base env not passed through")
	}
	if !strings.Contains(joined, "MAX_JOBS=7") {
		t.Errorf("plan env missing, got:\n%s", joined)
	}
}

func TestRun_SkipsLockedPhase(t *testing.T) {
	h := newHarness(t, &exec.FakeRunner{})
	if _, err := h.locks.Lock(context.Background(), h.phases[0], ""); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := report.Outcomes[0]; got.State != StateSkipped || got.Reason != "locked" {
		t.Errorf("outcome = %+v, want skipped/locked", got)
	}
	if got := report.Outcomes[1].State; got != StateSuccess {
		t.Errorf("beta state = %q, want success", got)
	}

	// The locked phase's command never ran.
	fake := h.deps.Runner.(*exec.FakeRunner)
	if len(fake.Calls) != 1 {
		t.Errorf("command invocations = %d, want 1", len(fake.Calls))
	}
}

func TestRun_SkipsWhenArtifactPresent(t *testing.T) {
	h := newHarness(t, &exec.FakeRunner{})
	artifact := filepath.Join(h.cfg.ArtifactsDir, "alpha-1.0.whl")
	if err := os.WriteFile(artifact, []byte("wheel"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := report.Outcomes[0]
	if got.State != StateSkipped {
		t.Fatalf("state = %q, want skipped", got.State)
	}
	if !strings.Contains(got.Reason, "alpha-1.0.whl") {
		t.Errorf("reason = %q, want artifact name", got.Reason)
	}
}

func TestRun_RequiredModeAbortsOnFirstFailure(t *testing.T) {
	h := newHarness(t, exitWith("alpha", 2))

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", report.ExitCode)
	}
	if len(report.Outcomes) != 1 {
		t.Errorf("outcome count = %d, want 1 (no further phases)", len(report.Outcomes))
	}
}

func TestRun_BestEffortContinues(t *testing.T) {
	h := newHarness(t, exitWith("alpha", 3))
	h.cfg.Mode = ModeBestEffort

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcome count = %d, want 2", len(report.Outcomes))
	}
	if report.Outcomes[0].State != StateFailed {
		t.Errorf("alpha state = %q, want failed", report.Outcomes[0].State)
	}
	if report.Outcomes[1].State != StateSuccess {
		t.Errorf("beta state = %q, want success", report.Outcomes[1].State)
	}
	if report.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want first failure's code 3", report.ExitCode)
	}
}

func TestRun_RequiredPhaseAbortsBestEffort(t *testing.T) {
	h := newHarness(t, exitWith("alpha", 1))
	h.cfg.Mode = ModeBestEffort
	h.phases[0].Required = true

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Outcomes) != 1 {
		t.Errorf("outcome count = %d, want 1 (required phase aborts)", len(report.Outcomes))
	}
}

func TestRun_PrereqMissing(t *testing.T) {
	h := newHarness(t, &exec.FakeRunner{})
	h.phases[0].Requires = []string{"src/alpha"}

	_, err := Run(context.Background(), h.cfg, h.deps, h.phases)
	if got := forgeerrors.GetCode(err); got != forgeerrors.EPrereqMissing {
		t.Errorf("GetCode() = %q, want E_PREREQ_MISSING", got)
	}

	// Detected before the command was invoked.
	fake := h.deps.Runner.(*exec.FakeRunner)
	if len(fake.Calls) != 0 {
		t.Errorf("command invocations = %d, want 0", len(fake.Calls))
	}
}

func TestRun_AutoLock(t *testing.T) {
	// The command deposits an artifact; the executor locks with it.
	h := newHarness(t, nil)
	h.phases[0].AutoLock = true
	runner := &exec.FakeRunner{
		RunFunc: func(_ context.Context, spec exec.Spec) (exec.Result, error) {
			name := filepath.Join(h.cfg.ArtifactsDir, "alpha-1.0.whl")
			if err := os.WriteFile(name, []byte("wheel"), 0o644); err != nil {
				return exec.Result{ExitCode: 1}, nil
			}
			return exec.Result{}, nil
		},
	}
	h.deps.Runner = runner

	report, err := Run(context.Background(), h.cfg, h.deps, h.phases[:1])
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := report.Outcomes[0].Artifact; got != "alpha-1.0.whl" {
		t.Errorf("Artifact = %q, want alpha-1.0.whl", got)
	}
	if h.locks.Check("alpha") != lockstore.Locked {
		t.Error("expected alpha to be auto-locked")
	}
}
