// Package exec provides command execution for forge.
// All external build actions and version-control queries go through
// CommandRunner so command behavior can be faked in tests.
package exec

import (
	"context"
	"errors"
	"io"
	osexec "os/exec"
	"strings"
)

// Spec describes a single external command invocation.
type Spec struct {
	// Name is the program to run.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory. Empty means inherit.
	Dir string

	// Env is the full environment for the command. Nil means inherit.
	Env []string

	// Stdout and Stderr receive the command's output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Result holds the outcome of a completed command.
type Result struct {
	// ExitCode is the command's exit code. Always >= 0; signal
	// termination is reported as 1 so callers can propagate it to
	// os.Exit unchanged.
	ExitCode int
}

// CommandRunner runs external commands.
type CommandRunner interface {
	// Run executes the command and waits for it. A non-zero exit is not
	// an error; it is reported in Result. The returned error covers
	// start failures only (program missing, permission denied).
	Run(ctx context.Context, spec Spec) (Result, error)

	// Output runs the command and returns its trimmed stdout.
	// Non-zero exit is an error here; used for version-control queries.
	Output(ctx context.Context, dir, name string, args ...string) (string, error)
}

// RealRunner implements CommandRunner against the host OS.
type RealRunner struct{}

// NewRealRunner creates a new RealRunner.
func NewRealRunner() RealRunner { return RealRunner{} }

// Run implements CommandRunner.
func (RealRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd := osexec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return Result{ExitCode: code}, nil
	}
	return Result{ExitCode: 1}, err
}

// Output implements CommandRunner.
func (RealRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
