package commands

import (
	"fmt"
	"io"
	"time"

	"matchpredict/internal/jobs"
	"matchpredict/internal/pipeline"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func score(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func status(s jobs.JobStatus) string {
	switch s {
	case jobs.JobCompleted:
		return green(string(s))
	case jobs.JobFailed:
		return red(string(s))
	default:
		return yellow(string(s))
	}
}

func runStatus(s string) string {
	switch s {
	case pipeline.RunCompleted:
		return green(s)
	case pipeline.RunFailed:
		return red(s)
	default:
		return yellow(s)
	}
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "\n%s %s  %s\n", blue("Run"), s.RunID, runStatus(s.Status))
	if s.Samples > 0 {
		fmt.Fprintf(w, "%d samples, %d features\n", s.Samples, s.Features)
	}

	if len(s.Models) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Model", "Status", "Stage", "CV accuracy", "Test accuracy", "Importance", "Time", "Error"})
		for _, m := range s.Models {
			errText := ""
			if m.Err != nil {
				errText = m.Err.Error()
			}
			t.AppendRow(table.Row{
				m.Name, status(m.Status), m.Stage, score(m.CVScore), score(m.Accuracy),
				m.Importance, m.Duration.Round(time.Millisecond), errText,
			})
		}
		t.Render()
	}

	if s.BestModel != "" {
		fmt.Fprintf(w, "Best model: %s (accuracy %.4f)\n", cyan(s.BestModel), s.BestAccuracy)
	}
	if s.Err != nil {
		fmt.Fprintln(w, red("Run aborted:"), s.Err)
	}
}

func printDataset(w io.Writer, ds *pipeline.Dataset) {
	fmt.Fprintf(w, "%s %d samples, %d features (train %d, test %d)\n",
		blue("Dataset:"), ds.Stats.Samples, ds.Stats.Features, len(ds.YTrain), len(ds.YTest))
	t := newTable(w)
	t.AppendHeader(table.Row{"Class", "Count"})
	for _, cc := range ds.Stats.Classes {
		t.AppendRow(table.Row{cc.Class, cc.Count})
	}
	t.Render()
	if ds.Balanced {
		fmt.Fprintln(w, yellow("Training split oversampled to balance classes"))
	}
}
