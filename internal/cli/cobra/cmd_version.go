package cobra

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeci/forge/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print forge version",
		Long:  "Print the forge version string.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "forge %s\n", version.FullVersion())
		},
	}

	return cmd
}
