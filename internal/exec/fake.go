package exec

import (
	"context"
	"fmt"
	"strings"
)

// FakeRunner is a CommandRunner for tests. Behavior is provided via
// function fields; unset fields succeed with empty results.
type FakeRunner struct {
	// RunFunc handles Run calls. Nil means exit 0.
	RunFunc func(ctx context.Context, spec Spec) (Result, error)

	// OutputFunc handles Output calls. Nil means empty output with an error,
	// matching a repo with no version control.
	OutputFunc func(ctx context.Context, dir, name string, args ...string) (string, error)

	// Calls records every Run invocation in order.
	Calls []Spec
}

// Run implements CommandRunner.
func (f *FakeRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	f.Calls = append(f.Calls, spec)
	if f.RunFunc == nil {
		return Result{ExitCode: 0}, nil
	}
	return f.RunFunc(ctx, spec)
}

// Output implements CommandRunner.
func (f *FakeRunner) Output(ctx context.Context, dir, name string, args ...string) (string, error) {
	if f.OutputFunc == nil {
		return "", fmt.Errorf("fake: no output configured for %s %s", name, strings.Join(args, " "))
	}
	return f.OutputFunc(ctx, dir, name, args...)
}
