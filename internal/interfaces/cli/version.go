package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Skip config loading; version must work without a valid config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "shiftscope %s\ncommit: %s\nbuilt:  %s\ngo:     %s\n",
				Version, GitCommit, BuildDate, runtime.Version())
			return nil
		},
	}
}
