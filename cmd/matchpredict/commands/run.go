package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the whole pipeline: preprocess, train, evaluate, compare and feature importance.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeFn, err := newRunner(cmd, true)
		if err != nil {
			return err
		}
		defer closeFn()

		s, err := r.Run(cmd.Context())
		printSummary(cmd.OutOrStdout(), s)
		return err
	},
}
