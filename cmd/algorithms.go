package cmd

import (
	"github.com/spf13/cobra"
)

func newAlgorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List available partitioning algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listAlgorithms(cmd.OutOrStdout())
		},
	}
}
