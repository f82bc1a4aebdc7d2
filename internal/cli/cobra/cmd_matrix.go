package cobra

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeci/forge/internal/commands"
	"github.com/forgeci/forge/internal/errors"
	"github.com/forgeci/forge/internal/exec"
	"github.com/forgeci/forge/internal/fs"
)

func newScanArtifactsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "scan-artifacts",
		Short: "Lock every step whose artifact already exists",
		Long: `Scan the artifact directory and lock steps whose wheels are present.

Filenames are matched against the ordered prefix rule table; the first
rule wins. Already-locked steps are left alone, so rescanning an
unchanged directory does nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			opts := commands.ScanOpts{Dir: dir}
			return commands.Scan(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory to scan (default: configured artifacts dir)")

	return cmd
}

func newUpdateMatrixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-matrix",
		Short: "Regenerate the dependency matrix",
		Long: `Rebuild the dependency matrix from the step registry and lock records.

The matrix file is rewritten wholesale; it is a derived document and
never hand-edited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			return commands.UpdateMatrix(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, cmd.OutOrStdout())
		},
	}

	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-step lock status and dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			return commands.Status(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, cmd.OutOrStdout())
		},
	}

	return cmd
}
