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

func newCheckCmd() *cobra.Command {
	var ignoreLocks bool

	cmd := &cobra.Command{
		Use:   "check <step>",
		Short: "Report a step's lock status via the exit code",
		Long: `Check whether a step is locked.

Exit codes:
  0    unlocked, the step should be rebuilt
  1    locked, the step should be skipped

Build scripts branch on the exit code; output is informational only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			opts := commands.CheckOpts{Step: args[0], IgnoreLocks: ignoreLocks}
			return commands.Check(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&ignoreLocks, "ignore-locks", false, "treat every step as unlocked")

	return cmd
}
