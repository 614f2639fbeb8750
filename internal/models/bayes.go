package models

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NaiveBayes is a Gaussian naive Bayes classifier.
type NaiveBayes struct {
	BaseModel
	VarSmoothing   float64
	ClassLogPriors []float64
	FeatureMeans   [][]float64
	FeatureVars    [][]float64
}

func NewNaiveBayes(varSmoothing float64) *NaiveBayes {
	if varSmoothing <= 0 {
		varSmoothing = 1e-9
	}
	return &NaiveBayes{
		VarSmoothing: varSmoothing,
		BaseModel: BaseModel{
			Name:   "NaiveBayes",
			Family: FamilyNaiveBayes,
			Params: map[string]any{
				"var_smoothing": varSmoothing,
			},
		},
	}
}

func newNaiveBayesFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyNaiveBayes, params)
	vs := r.Float("var_smoothing", 1e-9)
	r.Positive("var_smoothing", vs)
	if err := r.err(); err != nil {
		return nil, err
	}
	return NewNaiveBayes(vs), nil
}

func (nb *NaiveBayes) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	nb.Classes = ExtractClasses(y)
	Xf := toFloatMatrix(X)
	nFeatures := len(Xf[0])

	// epsilon is relative to the largest feature variance
	column := make([]float64, len(Xf))
	maxVar := 0.0
	for j := 0; j < nFeatures; j++ {
		for i := range Xf {
			column[i] = Xf[i][j]
		}
		_, v := stat.PopMeanVariance(column, nil)
		maxVar = math.Max(maxVar, v)
	}
	epsilon := nb.VarSmoothing * maxVar
	if epsilon == 0 {
		epsilon = nb.VarSmoothing
	}

	nb.ClassLogPriors = make([]float64, len(nb.Classes))
	nb.FeatureMeans = make([][]float64, len(nb.Classes))
	nb.FeatureVars = make([][]float64, len(nb.Classes))

	for k, class := range nb.Classes {
		var classData [][]float64
		for i, label := range y {
			if label == class {
				classData = append(classData, Xf[i])
			}
		}
		if len(classData) == 0 {
			return fmt.Errorf("class %d has no samples", class)
		}

		nb.ClassLogPriors[k] = math.Log(float64(len(classData)) / float64(len(y)))
		nb.FeatureMeans[k] = make([]float64, nFeatures)
		nb.FeatureVars[k] = make([]float64, nFeatures)

		values := make([]float64, len(classData))
		for j := 0; j < nFeatures; j++ {
			for i, row := range classData {
				values[i] = row[j]
			}
			mean, variance := stat.PopMeanVariance(values, nil)
			nb.FeatureMeans[k][j] = mean
			nb.FeatureVars[k][j] = variance + epsilon
		}
	}

	return nil
}

func (nb *NaiveBayes) jointLogLikelihood(sample []float64) []float64 {
	out := make([]float64, len(nb.Classes))
	for k := range nb.Classes {
		logProb := nb.ClassLogPriors[k]
		for j, x := range sample {
			v := nb.FeatureVars[k][j]
			diff := x - nb.FeatureMeans[k][j]
			logProb += -0.5*math.Log(2*math.Pi*v) - diff*diff/(2*v)
		}
		out[k] = logProb
	}
	return out
}

func (nb *NaiveBayes) Predict(X [][]decimal.Decimal) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = nb.Classes[floats.MaxIdx(nb.jointLogLikelihood(toFloatRow(sample)))]
	}
	return predictions
}

func (nb *NaiveBayes) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	for i, sample := range X {
		logProbs := nb.jointLogLikelihood(toFloatRow(sample))
		softmax(logProbs)
		proba[i] = toDecimalRow(logProbs)
	}
	return proba
}

func (nb *NaiveBayes) Reset() {
	nb.ClassLogPriors = nil
	nb.FeatureMeans = nil
	nb.FeatureVars = nil
	nb.Classes = nil
}
