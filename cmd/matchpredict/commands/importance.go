package commands

import (
	"errors"
	"fmt"

	"matchpredict/internal/importance"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(importanceCmd)
}

var importanceCmd = &cobra.Command{
	Use:   "importance [models...]",
	Short: "Ranks the features of saved models that expose importances.",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeFn, err := newRunner(cmd, false)
		if err != nil {
			return err
		}
		defer closeFn()

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Model", "Kind", "Top feature", "Value", "Figure"})
		var failed int
		for _, res := range r.Importance(cmd.Context(), rosterArgs(cmd, args)) {
			switch {
			case errors.Is(res.Err, importance.ErrImportanceUnavailable):
				t.AppendRow(table.Row{res.Name, yellow("not available")})
			case res.Err != nil:
				failed++
				t.AppendRow(table.Row{res.Name, red("failed"), res.Err.Error()})
			default:
				top := res.Ranking[0]
				t.AppendRow(table.Row{res.Name, res.Kind, top.Name, fmt.Sprintf("%.4f", top.Value), res.FigurePath})
			}
		}
		t.Render()

		if failed > 0 {
			return fmt.Errorf("%d models failed", failed)
		}
		return nil
	},
}
