// Command forge orchestrates the ROCm PyTorch wheel build pipeline.
package main

import (
	"os"

	"github.com/forgeci/forge/internal/cli/cobra"
	"github.com/forgeci/forge/internal/errors"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}
