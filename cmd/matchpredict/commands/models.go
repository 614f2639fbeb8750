package commands

import (
	"strings"

	"matchpredict/internal/experiment"
	"matchpredict/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Lists the model families, their grids and importance support.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getGlobals(cmd.Context()).cfg
		overrides, err := experiment.LoadGridFile(cfg.GridFile)
		if err != nil {
			return err
		}

		inRoster := make(map[string]bool, len(cfg.Models))
		for _, m := range cfg.Models {
			inRoster[m] = true
		}

		reg := models.Default()
		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Family", "Roster", "Importance", "Combinations", "Parameters"})
		for _, name := range reg.Names() {
			f, err := reg.Lookup(name)
			if err != nil {
				return err
			}
			grid := f.DefaultGrid
			if g, ok := overrides[name]; ok {
				grid = g
			}
			roster := ""
			if inRoster[name] {
				roster = green("yes")
			}
			t.AppendRow(table.Row{name, roster, f.Importance, grid.Size(), strings.Join(grid.Keys(), ", ")})
		}
		t.Render()
		return nil
	},
}
