package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(trainCmd)
}

var trainCmd = &cobra.Command{
	Use:   "train [models...]",
	Short: "Grid-searches and saves the given models, or the configured roster.",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeFn, err := newRunner(cmd, true)
		if err != nil {
			return err
		}
		defer closeFn()

		ctx := cmd.Context()
		ds, err := r.Prepare(ctx)
		if err != nil {
			printSummary(cmd.OutOrStdout(), r.Finish(ctx, err))
			return err
		}
		printDataset(cmd.OutOrStdout(), ds)
		_, err = r.Train(ctx, ds, rosterArgs(cmd, args))
		printSummary(cmd.OutOrStdout(), r.Finish(ctx, err))
		return err
	},
}
