package evaluation

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrLengthMismatch = errors.New("label and prediction lengths differ")

type ClassificationMetrics struct {
	Accuracy          float64
	MacroPrecision    float64
	MacroRecall       float64
	MacroF1           float64
	WeightedPrecision float64
	WeightedRecall    float64
	WeightedF1        float64
	Classes           []int
	PerClass          []ClassMetrics
	ConfusionMatrix   [][]int
	NumSamples        int
}

type ClassMetrics struct {
	Class     int
	Precision float64
	Recall    float64
	F1Score   float64
	Support   int
}

// ReportRow is one line of a classification report: a class label, or one
// of "accuracy", "macro avg" and "weighted avg".
type ReportRow struct {
	Label     string
	Precision float64
	Recall    float64
	F1Score   float64
	Support   int
}

// CalculateMetrics builds per-class and averaged metrics. The class set is
// the sorted union of classes, yTrue and yPred.
func CalculateMetrics(yTrue, yPred []int, classes []int) (*ClassificationMetrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%d labels, %d predictions: %w", len(yTrue), len(yPred), ErrLengthMismatch)
	}
	if len(yTrue) == 0 {
		return nil, errors.New("no samples to evaluate")
	}

	classes = unionClasses(classes, yTrue, yPred)
	confusion := buildConfusionMatrix(yTrue, yPred, classes)

	m := &ClassificationMetrics{
		Classes:         classes,
		ConfusionMatrix: confusion,
		NumSamples:      len(yTrue),
		PerClass:        make([]ClassMetrics, len(classes)),
	}

	correct := 0
	for i, class := range classes {
		tp := confusion[i][i]
		correct += tp
		fp, fn := 0, 0
		for j := range classes {
			if j != i {
				fp += confusion[j][i]
				fn += confusion[i][j]
			}
		}
		support := tp + fn

		precision := safeDivide(float64(tp), float64(tp+fp))
		recall := safeDivide(float64(tp), float64(support))
		f1 := safeDivide(2*precision*recall, precision+recall)
		m.PerClass[i] = ClassMetrics{Class: class, Precision: precision, Recall: recall, F1Score: f1, Support: support}

		m.MacroPrecision += precision
		m.MacroRecall += recall
		m.MacroF1 += f1
		m.WeightedPrecision += precision * float64(support)
		m.WeightedRecall += recall * float64(support)
		m.WeightedF1 += f1 * float64(support)
	}

	k := float64(len(classes))
	n := float64(len(yTrue))
	m.MacroPrecision /= k
	m.MacroRecall /= k
	m.MacroF1 /= k
	m.WeightedPrecision /= n
	m.WeightedRecall /= n
	m.WeightedF1 /= n
	m.Accuracy = float64(correct) / n
	return m, nil
}

// Accuracy is the share of exact matches.
func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%d labels, %d predictions: %w", len(yTrue), len(yPred), ErrLengthMismatch)
	}
	if len(yTrue) == 0 {
		return 0, errors.New("no samples to score")
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// ReportRows lays the metrics out as a classification report: one row per
// class, then accuracy, macro avg and weighted avg. The accuracy row repeats accuracy in every metric column and
// carries the sample count as support. label names each class; when nil
// the class code is used.
func (m *ClassificationMetrics) ReportRows(label func(class int) string) []ReportRow {
	if label == nil {
		label = func(class int) string { return fmt.Sprint(class) }
	}
	rows := make([]ReportRow, 0, len(m.PerClass)+3)
	for _, c := range m.PerClass {
		rows = append(rows, ReportRow{
			Label:     label(c.Class),
			Precision: c.Precision,
			Recall:    c.Recall,
			F1Score:   c.F1Score,
			Support:   c.Support,
		})
	}
	return append(rows,
		ReportRow{Label: "accuracy", Precision: m.Accuracy, Recall: m.Accuracy, F1Score: m.Accuracy, Support: m.NumSamples},
		ReportRow{Label: "macro avg", Precision: m.MacroPrecision, Recall: m.MacroRecall, F1Score: m.MacroF1, Support: m.NumSamples},
		ReportRow{Label: "weighted avg", Precision: m.WeightedPrecision, Recall: m.WeightedRecall, F1Score: m.WeightedF1, Support: m.NumSamples},
	)
}

func (m *ClassificationMetrics) FormatMetrics() string {
	result := fmt.Sprintf("Accuracy: %.4f\n", m.Accuracy)
	result += fmt.Sprintf("Macro Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.MacroPrecision, m.MacroRecall, m.MacroF1)
	result += fmt.Sprintf("Weighted Avg - Precision: %.4f, Recall: %.4f, F1: %.4f\n",
		m.WeightedPrecision, m.WeightedRecall, m.WeightedF1)
	return result
}

func unionClasses(classes []int, ys ...[]int) []int {
	seen := make(map[int]bool)
	for _, c := range classes {
		seen[c] = true
	}
	for _, y := range ys {
		for _, c := range y {
			seen[c] = true
		}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

func buildConfusionMatrix(yTrue, yPred []int, classes []int) [][]int {
	matrix := make([][]int, len(classes))
	for i := range matrix {
		matrix[i] = make([]int, len(classes))
	}

	classToIdx := make(map[int]int, len(classes))
	for i, class := range classes {
		classToIdx[class] = i
	}

	for i := range yTrue {
		matrix[classToIdx[yTrue[i]]][classToIdx[yPred[i]]]++
	}
	return matrix
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0.0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0.0
	}
	return result
}
