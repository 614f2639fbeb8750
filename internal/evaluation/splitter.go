package evaluation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

type TrainTestSplitter struct {
	testSize   float64
	randomSeed int64
}

func NewTrainTestSplitter(testSize float64, randomSeed int64) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
	}
}

func DefaultTrainTestSplitter() *TrainTestSplitter {
	return NewTrainTestSplitter(0.2, 42)
}

// StratifiedSplit keeps each class's share in both halves. Classes are
// visited in ascending order, so a seed always yields the same split. A
// class with at least two samples contributes at least one test sample.
func (tts *TrainTestSplitter) StratifiedSplit(X [][]decimal.Decimal, y []int) ([][]decimal.Decimal, [][]decimal.Decimal, []int, []int, error) {
	trainIdx, testIdx, err := tts.StratifiedIndices(y)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("x and y must have the same length: %w", ErrLengthMismatch)
	}
	XTrain, yTrain := Subset(X, y, trainIdx)
	XTest, yTest := Subset(X, y, testIdx)
	return XTrain, XTest, yTrain, yTest, nil
}

// StratifiedIndices returns the row indices of the train and test halves.
func (tts *TrainTestSplitter) StratifiedIndices(y []int) ([]int, []int, error) {
	if len(y) == 0 {
		return nil, nil, errors.New("cannot split empty dataset")
	}
	if tts.testSize <= 0 || tts.testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be between 0 and 1, got %v", tts.testSize)
	}

	byClass := groupByClass(y)
	rng := rand.New(rand.NewSource(tts.randomSeed))

	var trainIdx, testIdx []int
	for _, class := range sortedKeys(byClass) {
		indices := byClass[class]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		testCount := int(math.Round(float64(len(indices)) * tts.testSize))
		if testCount == 0 && len(indices) > 1 {
			testCount = 1
		}
		if testCount >= len(indices) {
			testCount = len(indices) - 1
		}
		testIdx = append(testIdx, indices[:testCount]...)
		trainIdx = append(trainIdx, indices[testCount:]...)
	}

	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	if len(testIdx) == 0 {
		return nil, nil, fmt.Errorf("test split of %d samples is empty", len(y))
	}
	return trainIdx, testIdx, nil
}

// Subset copies the rows named by idx.
func Subset(X [][]decimal.Decimal, y []int, idx []int) ([][]decimal.Decimal, []int) {
	XOut := make([][]decimal.Decimal, len(idx))
	yOut := make([]int, len(idx))
	for i, row := range idx {
		XOut[i] = make([]decimal.Decimal, len(X[row]))
		copy(XOut[i], X[row])
		yOut[i] = y[row]
	}
	return XOut, yOut
}

func groupByClass(y []int) map[int][]int {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	return byClass
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
