package preprocessing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scaler standardizes features to zero mean and unit population variance.
// A constant feature keeps a std of 1 so it maps to zero.
type Scaler struct {
	IsFitted    bool
	FeatureMean []decimal.Decimal
	FeatureStd  []decimal.Decimal
}

func NewScaler() *Scaler {
	return &Scaler{}
}

func (s *Scaler) Fit(X [][]decimal.Decimal) error {
	if len(X) == 0 {
		return fmt.Errorf("empty dataset")
	}

	nFeatures := len(X[0])
	nSamples := decimal.NewFromInt(int64(len(X)))
	s.FeatureMean = make([]decimal.Decimal, nFeatures)
	s.FeatureStd = make([]decimal.Decimal, nFeatures)

	for j := 0; j < nFeatures; j++ {
		sum := decimal.Zero
		for i := range X {
			sum = sum.Add(X[i][j])
		}
		s.FeatureMean[j] = sum.Div(nSamples)
	}

	for j := 0; j < nFeatures; j++ {
		variance := decimal.Zero
		for i := range X {
			diff := X[i][j].Sub(s.FeatureMean[j])
			variance = variance.Add(diff.Mul(diff))
		}
		variance = variance.Div(nSamples)

		varFloat, _ := variance.Float64()
		s.FeatureStd[j] = decimal.NewFromFloat(math.Sqrt(varFloat))
		if s.FeatureStd[j].IsZero() {
			s.FeatureStd[j] = decimal.NewFromInt(1)
		}
	}

	s.IsFitted = true
	return nil
}

func (s *Scaler) Transform(X [][]decimal.Decimal) ([][]decimal.Decimal, error) {
	if !s.IsFitted {
		return nil, fmt.Errorf("scaler must be fitted before transform")
	}

	result := make([][]decimal.Decimal, len(X))
	for i := range X {
		if len(X[i]) != len(s.FeatureMean) {
			return nil, fmt.Errorf("sample %d has %d features, scaler was fitted on %d", i, len(X[i]), len(s.FeatureMean))
		}
		result[i] = make([]decimal.Decimal, len(X[i]))
		for j := range X[i] {
			result[i][j] = X[i][j].Sub(s.FeatureMean[j]).Div(s.FeatureStd[j])
		}
	}

	return result, nil
}

func (s *Scaler) FitTransform(X [][]decimal.Decimal) ([][]decimal.Decimal, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
