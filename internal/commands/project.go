// Package commands implements forge CLI commands.
package commands

import (
	"strings"
	"time"

	"github.com/forgeci/forge/internal/config"
	"github.com/forgeci/forge/internal/errors"
	forgeexec "github.com/forgeci/forge/internal/exec"
	forgefs "github.com/forgeci/forge/internal/fs"
	"github.com/forgeci/forge/internal/lockstore"
	"github.com/forgeci/forge/internal/matrix"
	"github.com/forgeci/forge/internal/steps"
)

// Project bundles the loaded configuration and the stores every command
// operates on.
type Project struct {
	Cfg      config.Config
	Registry *steps.Registry
	Store    *lockstore.Store
	Matrix   *matrix.Manager
}

// ProjectOpts adjusts project loading per invocation.
type ProjectOpts struct {
	// IgnoreLocks forces lock checks to report unlocked, on top of the
	// forge.yaml setting.
	IgnoreLocks bool
}

// LoadProject loads forge.yaml from workDir (falling back to defaults
// when absent) and wires the step registry, lock store, and matrix
// manager together.
func LoadProject(fsys forgefs.FS, runner forgeexec.CommandRunner, workDir string, opts ProjectOpts, now func() time.Time) (*Project, error) {
	cfg, err := config.Load(fsys, workDir)
	if err != nil {
		return nil, err
	}

	registry := steps.Builtin()
	if cfg.StepsFile != "" {
		registry, err = steps.LoadFile(fsys, cfg.StepsFile)
		if err != nil {
			return nil, err
		}
	}

	bypass := cfg.IgnoreLocks || opts.IgnoreLocks
	store := lockstore.New(fsys, runner, cfg.Paths.ScriptsDir, cfg.Paths.BackupsDir, bypass, now)
	mgr := matrix.NewManager(fsys, registry, store, cfg.Paths.MatrixFile, now)
	store.SetMatrixSyncer(mgr)

	return &Project{Cfg: cfg, Registry: registry, Store: store, Matrix: mgr}, nil
}

// step resolves a step id or fails with a usage-grade error listing the
// known ids.
func (p *Project) step(id string) (steps.BuildStep, error) {
	if id == "" {
		return steps.BuildStep{}, errors.New(errors.EUsage, "step id is required")
	}
	step, ok := p.Registry.Get(id)
	if !ok {
		return steps.BuildStep{}, errors.NewWithDetails(errors.EStepNotFound, "unknown step: "+id,
			map[string]string{"known": strings.Join(p.Registry.IDs(), ", ")})
	}
	return step, nil
}
