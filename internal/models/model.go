package models

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFitted     = errors.New("model is not fitted")
	ErrNotLinear     = errors.New("model has no linear coefficients")
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrUnknownFamily = errors.New("unknown model family")
)

type Model interface {
	Fit(X [][]decimal.Decimal, y []int) error
	Predict(X [][]decimal.Decimal) []int
	PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal
	GetType() string
	GetName() string
	GetParams() map[string]any
	GetClasses() []int
	Reset()
}

// ImportanceModel is implemented by tree-based models.
type ImportanceModel interface {
	FeatureImportances() ([]float64, error)
}

// LinearModel exposes one coefficient row per class.
type LinearModel interface {
	Coefficients() ([][]float64, error)
}

type BaseModel struct {
	Name    string
	Family  string
	Params  map[string]any
	Classes []int
}

func (bm *BaseModel) GetType() string {
	return bm.Family
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() map[string]any {
	out := make(map[string]any, len(bm.Params))
	for k, v := range bm.Params {
		out[k] = v
	}
	return out
}

func (bm *BaseModel) GetClasses() []int {
	return append([]int(nil), bm.Classes...)
}

// ExtractClasses returns the distinct labels in ascending order.
func ExtractClasses(y []int) []int {
	classMap := make(map[int]bool)
	for _, label := range y {
		classMap[label] = true
	}

	classes := make([]int, 0, len(classMap))
	for class := range classMap {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	return classes
}

func checkFitInput(X [][]decimal.Decimal, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}
	n := len(X[0])
	if n == 0 {
		return fmt.Errorf("features cannot be empty")
	}
	for i, row := range X {
		if len(row) != n {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, n, len(row))
		}
	}
	return nil
}

// classIndexes maps every label to its position in classes.
func classIndexes(y []int, classes []int) []int {
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	out := make([]int, len(y))
	for i, label := range y {
		out[i] = pos[label]
	}
	return out
}

// predictFromProba picks the most probable class; ties go to the smaller class.
func predictFromProba(proba [][]decimal.Decimal, classes []int) []int {
	out := make([]int, len(proba))
	for i, row := range proba {
		best := 0
		for k := 1; k < len(row); k++ {
			if row[k].GreaterThan(row[best]) {
				best = k
			}
		}
		if len(classes) > 0 {
			out[i] = classes[best]
		}
	}
	return out
}
