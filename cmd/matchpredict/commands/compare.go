package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(compareCmd)
}

var compareCmd = &cobra.Command{
	Use:   "compare [models...]",
	Short: "Ranks evaluated models by accuracy and charts the comparison.",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeFn, err := newRunner(cmd, false)
		if err != nil {
			return err
		}
		defer closeFn()

		cmp, err := r.Compare(cmd.Context(), rosterArgs(cmd, args))
		if err != nil {
			return err
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Rank", "Model", "Accuracy"})
		for _, row := range cmp.Rows {
			t.AppendRow(table.Row{row.Rank, row.Model, fmt.Sprintf("%.4f", row.Accuracy)})
		}
		t.Render()

		if best, ok := cmp.Best(); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Best model: %s\n", cyan(best.Model))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Comparison written to", cmp.CSVPath, "and", cmp.FigurePath)
		return nil
	},
}
