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

func newLockCmd() *cobra.Command {
	var artifact string
	var ignoreLocks bool

	cmd := &cobra.Command{
		Use:   "lock <step>",
		Short: "Lock a step so the pipeline skips it",
		Long: `Lock a step definition.

The step's script is snapshotted into a versioned backup on the first
lock; locking an already-locked step is a no-op.

Arguments:
  step    step id (see 'forge status' for the list)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			opts := commands.LockOpts{
				Step:        args[0],
				Artifact:    artifact,
				IgnoreLocks: ignoreLocks,
			}
			return commands.Lock(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&artifact, "artifact", "", "artifact filename this lock certifies")
	cmd.Flags().BoolVar(&ignoreLocks, "ignore-locks", false, "treat every step as unlocked")

	return cmd
}

func newUnlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock <step>",
		Short: "Unlock a step so the pipeline rebuilds it",
		Long: `Remove a step's lock record.

Backups taken at lock time are kept. Unlocking an unlocked step is a
no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			opts := commands.UnlockOpts{Step: args[0]}
			return commands.Unlock(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, opts, cmd.OutOrStdout())
		},
	}

	return cmd
}
