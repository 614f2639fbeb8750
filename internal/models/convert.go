package models

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func toFloatMatrix(X [][]decimal.Decimal) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = toFloatRow(row)
	}
	return out
}

func toFloatRow(row []decimal.Decimal) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v.InexactFloat64()
	}
	return out
}

func toDecimalRow(row []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(row))
	for j, v := range row {
		out[j] = decimal.NewFromFloat(v)
	}
	return out
}

func toDense(X [][]float64) *mat.Dense {
	if len(X) == 0 {
		return nil
	}
	d := len(X[0])
	m := mat.NewDense(len(X), d, nil)
	for i, row := range X {
		m.SetRow(i, row)
	}
	return m
}

// softmax normalizes scores in place.
func softmax(scores []float64) {
	maxScore := floats.Max(scores)
	sum := 0.0
	for k, s := range scores {
		scores[k] = math.Exp(s - maxScore)
		sum += scores[k]
	}
	floats.Scale(1/sum, scores)
}

func normalize(values []float64) {
	total := floats.Sum(values)
	if total > 0 {
		floats.Scale(1/total, values)
	}
}
