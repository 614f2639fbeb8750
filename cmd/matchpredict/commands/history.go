package commands

import (
	"errors"
	"time"

	"matchpredict/internal/ledger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Shows recent runs from the ledger, or the model results of one run.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getGlobals(cmd.Context()).cfg
		if cfg.LedgerPath == "" {
			return errors.New("ledger_path is not configured")
		}
		l, err := ledger.Open(cmd.Context(), cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer l.Close()

		if len(args) == 1 {
			return printModelResults(cmd, l, args[0])
		}

		runs, err := l.Runs(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Run", "Started", "Elapsed", "Status", "Samples", "Best model", "Accuracy"})
		for _, r := range runs {
			elapsed := ""
			if r.FinishedAt != nil {
				elapsed = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			t.AppendRow(table.Row{
				r.ID, r.StartedAt.Format(time.DateTime), elapsed, runStatus(r.Status),
				r.Samples, r.BestModel, score(r.BestAccuracy),
			})
		}
		t.Render()
		return nil
	},
}

func printModelResults(cmd *cobra.Command, l *ledger.Ledger, runID string) error {
	results, err := l.ModelResults(cmd.Context(), runID)
	if err != nil {
		return err
	}
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Model", "Status", "Stage", "CV accuracy", "Test accuracy", "Parameters", "Time", "Error"})
	for _, m := range results {
		t.AppendRow(table.Row{
			m.Model, m.Status, m.Stage, score(m.CVScore), score(m.TestAccuracy),
			m.BestParams, m.Duration.Round(time.Millisecond), m.Error,
		})
	}
	t.Render()
	return nil
}
