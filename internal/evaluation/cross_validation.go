package evaluation

import (
	"fmt"
	"math"
	"math/rand"

	"matchpredict/internal/models"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

type CrossValidator struct {
	NFolds     int
	Shuffle    bool
	RandomSeed int64
}

func NewCrossValidator(nFolds int, randomSeed int64) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Shuffle:    true,
		RandomSeed: randomSeed,
	}
}

// KFoldSplit returns the test indices of each stratified fold. Within each
// class (ascending) the i-th sample goes to fold p % NFolds, where p counts
// samples across classes, so fold sizes differ by at most one.
func (cv *CrossValidator) KFoldSplit(y []int) ([][]int, error) {
	if cv.NFolds < 2 || cv.NFolds > len(y) {
		return nil, fmt.Errorf("invalid number of folds: %d (must be between 2 and %d)", cv.NFolds, len(y))
	}

	byClass := groupByClass(y)
	rng := rand.New(rand.NewSource(cv.RandomSeed))
	folds := make([][]int, cv.NFolds)

	p := 0
	for _, class := range sortedKeys(byClass) {
		indices := byClass[class]
		if len(indices) < cv.NFolds {
			return nil, fmt.Errorf("class %d has %d samples, fewer than %d folds", class, len(indices), cv.NFolds)
		}
		if cv.Shuffle {
			rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			folds[p%cv.NFolds] = append(folds[p%cv.NFolds], idx)
			p++
		}
	}
	return folds, nil
}

// EvaluateFold fits m on every row outside testIndices and returns its
// accuracy on testIndices.
func (cv *CrossValidator) EvaluateFold(m models.Model, X [][]decimal.Decimal, y []int, testIndices []int) (float64, error) {
	testSet := make(map[int]bool, len(testIndices))
	for _, idx := range testIndices {
		testSet[idx] = true
	}

	XTrain := make([][]decimal.Decimal, 0, len(X)-len(testIndices))
	yTrain := make([]int, 0, len(X)-len(testIndices))
	for i := range X {
		if !testSet[i] {
			XTrain = append(XTrain, X[i])
			yTrain = append(yTrain, y[i])
		}
	}

	XTest := make([][]decimal.Decimal, len(testIndices))
	yTest := make([]int, len(testIndices))
	for i, idx := range testIndices {
		XTest[i] = X[idx]
		yTest[i] = y[idx]
	}

	if err := m.Fit(XTrain, yTrain); err != nil {
		return 0, err
	}
	return Accuracy(yTest, m.Predict(XTest))
}

// Stats returns the mean and population standard deviation of the fold
// scores. Any NaN score makes both NaN.
func Stats(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return math.NaN(), math.NaN()
	}
	for _, s := range scores {
		if math.IsNaN(s) {
			return math.NaN(), math.NaN()
		}
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return mean, math.Sqrt(variance)
}
