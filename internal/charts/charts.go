// Package charts renders the PNG figures of a pipeline run.
package charts

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var barColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}

// Bar is one labelled value of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
}

type BarOptions struct {
	Title  string
	XLabel string
	// Format renders the annotation next to each bar; empty means no
	// annotation.
	Format string
	// XMax fixes the upper bound of the value axis when positive.
	XMax float64
}

// HorizontalBars draws bars top to bottom in input order.
func HorizontalBars(path string, bars []Bar, opts BarOptions) error {
	if len(bars) == 0 {
		return errors.New("no bars to draw")
	}

	n := len(bars)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, b := range bars {
		// the first bar is drawn at the top
		values[n-1-i] = b.Value
		names[n-1-i] = b.Label
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.X.Min = 0
	if opts.XMax > 0 {
		p.X.Max = opts.XMax
	}

	chart, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return fmt.Errorf("failed to build bar chart: %w", err)
	}
	chart.Horizontal = true
	chart.Color = barColor
	chart.LineStyle.Width = 0
	p.Add(chart)
	p.NominalY(names...)

	if opts.Format != "" {
		xys := make(plotter.XYs, n)
		text := make([]string, n)
		for i, v := range values {
			xys[i] = plotter.XY{X: v, Y: float64(i)}
			text[i] = fmt.Sprintf(opts.Format, v)
		}
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
		if err != nil {
			return fmt.Errorf("failed to build labels: %w", err)
		}
		labels.Offset = vg.Point{X: vg.Points(4), Y: -vg.Points(4)}
		p.Add(labels)
		if opts.XMax <= 0 {
			// room for the annotation of the longest bar
			p.X.Max *= 1.15
		}
	}

	height := vg.Points(float64(60 + 28*n))
	return save(p, 8*vg.Inch, height, path)
}

// matrixGrid adapts a confusion matrix to plotter.GridXYZ. Row 0 is drawn
// at the top.
type matrixGrid struct {
	m [][]int
}

func (g matrixGrid) Dims() (c, r int)   { return len(g.m[0]), len(g.m) }
func (g matrixGrid) Z(c, r int) float64 { return float64(g.m[len(g.m)-1-r][c]) }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// ConfusionMatrix draws the matrix as a heat map with the count in each
// cell. Rows are true labels and columns are predictions.
func ConfusionMatrix(path, title string, matrix [][]int, labels []string) error {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return errors.New("empty confusion matrix")
	}
	if len(labels) != len(matrix) {
		return fmt.Errorf("%d labels for a %dx%d matrix", len(labels), len(matrix), len(matrix))
	}

	grid := matrixGrid{m: matrix}
	heat := plotter.NewHeatMap(grid, palette.Heat(12, 1))
	if heat.Min == heat.Max {
		heat.Max = heat.Min + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"
	p.Add(heat)

	n := len(matrix)
	var xys plotter.XYs
	var text []string
	for r, row := range matrix {
		for c, v := range row {
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(n - 1 - r)})
			text = append(text, strconv.Itoa(v))
		}
	}
	counts, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text})
	if err != nil {
		return fmt.Errorf("failed to build labels: %w", err)
	}
	p.Add(counts)

	reversed := make([]string, n)
	for i, l := range labels {
		reversed[n-1-i] = l
	}
	p.NominalX(labels...)
	p.NominalY(reversed...)

	return save(p, 6*vg.Inch, 5*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create figures directory: %w", err)
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
