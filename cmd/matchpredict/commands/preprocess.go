package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(preprocessCmd)
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Cleans the input table and writes the cleaned CSV.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeFn, err := newRunner(cmd, false)
		if err != nil {
			return err
		}
		defer closeFn()

		cleaned, rep, err := r.Preprocess(cmd.Context())
		if rep == nil {
			return err
		}

		cfg := getGlobals(cmd.Context()).cfg
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d rows, %d columns)\n", green("Cleaned table written to"), cfg.CleanedPath, cleaned.Len(), cleaned.Width())
		if len(rep.DuplicateColumns) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Duplicate columns dropped:", strings.Join(rep.DuplicateColumns, ", "))
		}
		if len(rep.DroppedColumns) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Columns dropped:", strings.Join(rep.DroppedColumns, ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Columns scaled:", len(rep.ScaledColumns))

		if len(rep.Imputed) > 0 {
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Column", "Missing", "Filled with"})
			for _, im := range rep.Imputed {
				t.AppendRow(table.Row{im.Column, im.Count, im.Fill})
			}
			t.Render()
		}

		cols := make([]string, 0, len(rep.Encodings))
		for c := range rep.Encodings {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d categories\n", cyan(c), len(rep.Encodings[c]))
		}

		for _, w := range rep.Warnings {
			fmt.Fprintln(cmd.OutOrStdout(), yellow("warning:"), w)
		}
		return err
	},
}
