// Package config handles loading and validation of the forge.yaml project
// configuration. The result is an immutable value injected into each
// component's constructor; no component reads ambient environment state.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/forgeci/forge/internal/errors"
	forgefs "github.com/forgeci/forge/internal/fs"
)

// CurrentVersion is the supported forge.yaml schema version.
const CurrentVersion = 1

// Filename is the project configuration filename.
const Filename = "forge.yaml"

// Config is the parsed and validated project configuration. All paths are
// absolute after loading.
type Config struct {
	Version int `yaml:"version"`

	Paths Paths `yaml:"paths"`

	// Resources holds operator planning overrides. Nil fields defer to
	// the planner's tier defaults.
	Resources Resources `yaml:"resources"`

	// IgnoreLocks forces every lock check to report Unlocked. Used by
	// maintenance and full-rebuild flows.
	IgnoreLocks bool `yaml:"ignore_locks"`

	// StepsFile optionally replaces the builtin step registry.
	StepsFile string `yaml:"steps_file"`

	// StaleLockGlobs are OS-level lock markers removed best-effort
	// before each run (leftover index/session locks from aborted runs).
	StaleLockGlobs []string `yaml:"stale_lock_globs"`

	// WorkDir is the project root all relative paths resolve against.
	// Set by the loader, not the file.
	WorkDir string `yaml:"-"`
}

// Paths locates the on-disk surfaces forge reads and writes.
type Paths struct {
	// ScriptsDir holds the step definition scripts; lock records are
	// co-located here.
	ScriptsDir string `yaml:"scripts_dir"`

	// ArtifactsDir is where phases deposit their outputs.
	ArtifactsDir string `yaml:"artifacts_dir"`

	// BackupsDir receives versioned snapshots of step definitions on lock.
	BackupsDir string `yaml:"backups_dir"`

	// LogsDir receives full per-run build logs.
	LogsDir string `yaml:"logs_dir"`

	// ArchiveDir receives curated error excerpts; the file count here is
	// the strike counter.
	ArchiveDir string `yaml:"archive_dir"`

	// MatrixFile is the persisted dependency matrix document.
	MatrixFile string `yaml:"matrix_file"`

	// JournalFile is the append-only change journal.
	JournalFile string `yaml:"journal_file"`
}

// Resources holds operator planning overrides from forge.yaml.
type Resources struct {
	Jobs          *int `yaml:"jobs"`
	ReservedCores *int `yaml:"reserved_cores"`
	PerJobMemGB   *int `yaml:"per_job_mem_gb"`
}

// Default returns the configuration used when no forge.yaml exists,
// rooted at workDir.
func Default(workDir string) Config {
	cfg := defaultRelative()
	cfg.resolve(workDir)
	return cfg
}

// Load reads forge.yaml from workDir. A missing file yields the defaults;
// an unreadable or invalid file is an error. Unknown fields are rejected.
func Load(fsys forgefs.FS, workDir string) (Config, error) {
	path := filepath.Join(workDir, Filename)

	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(workDir), nil
		}
		return Config{}, errors.Wrap(errors.ENoConfig, "failed to read "+Filename, err)
	}

	// Decode over the relative defaults so omitted fields keep them;
	// paths are resolved to absolute after validation.
	cfg := defaultRelative()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.EInvalidConfig, "invalid "+Filename, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.resolve(workDir)
	return cfg, nil
}

// defaultRelative returns the default config with paths still relative,
// ready to be overlaid by a decoded file.
func defaultRelative() Config {
	return Config{
		Version: CurrentVersion,
		Paths: Paths{
			ScriptsDir:   "scripts",
			ArtifactsDir: "dist",
			BackupsDir:   ".forge/backups",
			LogsDir:      ".forge/logs",
			ArchiveDir:   ".forge/strikes",
			MatrixFile:   ".forge/matrix.json",
			JournalFile:  ".forge/journal.jsonl",
		},
		StaleLockGlobs: []string{
			"src/*/.git/index.lock",
			".forge/tmp/*.lock",
		},
	}
}

func validate(cfg Config) error {
	if cfg.Version != CurrentVersion {
		return errors.NewWithDetails(errors.EInvalidConfig, "unsupported config version",
			map[string]string{"version": strconv.Itoa(cfg.Version)})
	}
	paths := map[string]string{
		"scripts_dir":   cfg.Paths.ScriptsDir,
		"artifacts_dir": cfg.Paths.ArtifactsDir,
		"backups_dir":   cfg.Paths.BackupsDir,
		"logs_dir":      cfg.Paths.LogsDir,
		"archive_dir":   cfg.Paths.ArchiveDir,
		"matrix_file":   cfg.Paths.MatrixFile,
		"journal_file":  cfg.Paths.JournalFile,
	}
	for name, v := range paths {
		if v == "" {
			return errors.New(errors.EInvalidConfig, "paths."+name+" must not be empty")
		}
	}
	return nil
}

// resolve makes every configured path absolute against workDir.
func (c *Config) resolve(workDir string) {
	c.WorkDir = workDir
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workDir, p)
	}
	c.Paths.ScriptsDir = abs(c.Paths.ScriptsDir)
	c.Paths.ArtifactsDir = abs(c.Paths.ArtifactsDir)
	c.Paths.BackupsDir = abs(c.Paths.BackupsDir)
	c.Paths.LogsDir = abs(c.Paths.LogsDir)
	c.Paths.ArchiveDir = abs(c.Paths.ArchiveDir)
	c.Paths.MatrixFile = abs(c.Paths.MatrixFile)
	c.Paths.JournalFile = abs(c.Paths.JournalFile)
	c.StepsFile = abs(c.StepsFile)
	for i, g := range c.StaleLockGlobs {
		c.StaleLockGlobs[i] = abs(g)
	}
}
