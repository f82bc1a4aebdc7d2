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

func newBuildCmd() *cobra.Command {
	var (
		bestEffort    bool
		ignoreLocks   bool
		jobs          int
		reservedCores int
		perJobMem     int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the whole build pipeline once",
		Long: `Run every unlocked phase in pipeline order.

Concurrency is planned from the machine's cores and memory; --jobs
overrides the plan outright. A failed phase aborts the run unless
--best-effort is set (phases marked required always abort). Failures
archive a curated log excerpt and count as a strike.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrap(errors.EInternal, "failed to get working directory", err)
			}

			opts := commands.BuildOpts{
				BestEffort:  bestEffort,
				IgnoreLocks: ignoreLocks,
			}
			if cmd.Flags().Changed("jobs") {
				opts.Jobs = &jobs
			}
			if cmd.Flags().Changed("reserved-cores") {
				opts.ReservedCores = &reservedCores
			}
			if cmd.Flags().Changed("per-job-mem") {
				opts.PerJobMemGB = &perJobMem
			}

			return commands.Build(context.Background(), fs.NewRealFS(), exec.NewRealRunner(), cwd, opts,
				cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "continue past failed phases")
	cmd.Flags().BoolVar(&ignoreLocks, "ignore-locks", false, "rebuild locked steps too")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "parallel jobs (overrides the resource plan)")
	cmd.Flags().IntVar(&reservedCores, "reserved-cores", 0, "cores withheld from the plan")
	cmd.Flags().IntVar(&perJobMem, "per-job-mem", 0, "memory budget per job in GB")

	return cmd
}
