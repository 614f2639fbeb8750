package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [models...]",
	Short: "Evaluates saved models on the held-out split and writes their reports.",
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

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Model", "Accuracy", "Macro F1", "Weighted F1", "Report"})
		for _, ev := range r.Evaluate(ctx, ds, rosterArgs(cmd, args)) {
			if ev.Err != nil {
				t.AppendRow(table.Row{ev.Name, red("failed"), "", "", ev.Err.Error()})
				continue
			}
			m := ev.Metrics
			t.AppendRow(table.Row{ev.Name, score(&m.Accuracy), score(&m.MacroF1), score(&m.WeightedF1), ev.ReportPath})
		}
		t.Render()

		printSummary(cmd.OutOrStdout(), r.Finish(ctx, ctx.Err()))
		return ctx.Err()
	},
}
