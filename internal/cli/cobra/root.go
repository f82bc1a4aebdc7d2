// Package cobra provides the Cobra-based CLI command tree for forge.
package cobra

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/forgeci/forge/internal/version"
)

// NewRootCmd creates the root cobra command for forge.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Build orchestrator for the ROCm PyTorch wheel stack",
		Long: `forge - build orchestrator for the ROCm PyTorch wheel stack

Forge plans build concurrency from the machine's resources, runs the
wheel build phases in order, locks finished artifacts so reruns skip
them, and archives curated failure excerpts for post-mortems.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // We handle error printing in main.go
		SilenceUsage:  true, // We handle usage printing manually
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newLockCmd(),
		newUnlockCmd(),
		newCheckCmd(),
		newScanArtifactsCmd(),
		newUpdateMatrixCmd(),
		newStatusCmd(),
		newBuildCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
