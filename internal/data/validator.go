package data

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

func (dv *DataValidator) ValidateDataset(X [][]decimal.Decimal, y []int) error {
	if len(X) == 0 {
		return fmt.Errorf("dataset is empty")
	}

	if len(X) != len(y) {
		return fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("features cannot be empty")
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
	}

	return nil
}

// ValidateLabels requires at least two classes and, when folds > 0, enough
// members in every class to fill each stratified fold.
func (dv *DataValidator) ValidateLabels(y []int, folds int) error {
	if len(y) == 0 {
		return fmt.Errorf("labels are empty")
	}

	counts := ClassCounts(y)
	if len(counts) < 2 {
		return fmt.Errorf("dataset must have at least 2 classes, found %d", len(counts))
	}

	if folds > 0 {
		for _, cc := range counts {
			if cc.Count < folds {
				return fmt.Errorf("class %d has %d samples, fewer than %d folds", cc.Class, cc.Count, folds)
			}
		}
	}

	return nil
}

func (dv *DataValidator) ValidateTrainTestSplit(XTrain, XTest [][]decimal.Decimal, yTrain, yTest []int) error {
	if err := dv.ValidateDataset(XTrain, yTrain); err != nil {
		return fmt.Errorf("training set validation failed: %w", err)
	}

	if err := dv.ValidateDataset(XTest, yTest); err != nil {
		return fmt.Errorf("test set validation failed: %w", err)
	}

	if len(XTrain[0]) != len(XTest[0]) {
		return fmt.Errorf("train and test sets have different feature counts: %d vs %d", len(XTrain[0]), len(XTest[0]))
	}

	return nil
}

type ClassCount struct {
	Class int
	Count int
}

// ClassCounts returns per-class frequencies sorted by class.
func ClassCounts(y []int) []ClassCount {
	m := make(map[int]int)
	for _, label := range y {
		m[label]++
	}
	out := make([]ClassCount, 0, len(m))
	for class, count := range m {
		out = append(out, ClassCount{Class: class, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

type FeatureStats struct {
	Name string
	Min  decimal.Decimal
	Max  decimal.Decimal
	Mean decimal.Decimal
}

type DatasetStats struct {
	Samples  int
	Features int
	Classes  []ClassCount
	Columns  []FeatureStats
}

func (dv *DataValidator) GetDatasetStats(X [][]decimal.Decimal, y []int, names []string) DatasetStats {
	stats := DatasetStats{Samples: len(X), Classes: ClassCounts(y)}
	if len(X) == 0 {
		return stats
	}

	nFeatures := len(X[0])
	stats.Features = nFeatures
	stats.Columns = make([]FeatureStats, nFeatures)

	values := make([]decimal.Decimal, len(X))
	for j := 0; j < nFeatures; j++ {
		for i := range X {
			values[i] = X[i][j]
		}

		name := fmt.Sprintf("feature_%d", j)
		if j < len(names) {
			name = names[j]
		}
		stats.Columns[j] = FeatureStats{
			Name: name,
			Min:  decimal.Min(values[0], values[1:]...),
			Max:  decimal.Max(values[0], values[1:]...),
			Mean: decimal.Avg(values[0], values[1:]...),
		}
	}

	return stats
}
