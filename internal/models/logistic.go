package models

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a multinomial (softmax) classifier with an L2
// penalty. The objective is 0.5*||W||^2 + C * sum of cross-entropy terms.
type LogisticRegression struct {
	BaseModel
	C          float64
	Solver     string
	Penalty    string
	MaxIter    int
	Tol        float64
	Weights    [][]float64
	Intercepts []float64
}

func NewLogisticRegression(c float64, solver string) *LogisticRegression {
	if c <= 0 {
		c = 1
	}
	if solver != "lbfgs" && solver != "saga" {
		solver = "lbfgs"
	}
	return &LogisticRegression{
		C:       c,
		Solver:  solver,
		Penalty: "l2",
		MaxIter: 1000,
		Tol:     1e-4,
		BaseModel: BaseModel{
			Name:   "LogisticRegression",
			Family: FamilyLogisticRegression,
			Params: map[string]any{
				"C":       c,
				"solver":  solver,
				"penalty": "l2",
			},
		},
	}
}

func newLogisticRegressionFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyLogisticRegression, params)
	c := r.Float("C", 1)
	solver := r.String("solver", "lbfgs", "lbfgs", "saga")
	r.String("penalty", "l2", "l2")
	maxIter := r.Int("max_iter", 1000)
	r.Positive("C", c)
	r.AtLeast("max_iter", maxIter, 1)
	if err := r.err(); err != nil {
		return nil, err
	}
	lr := NewLogisticRegression(c, solver)
	lr.MaxIter = maxIter
	lr.Params["max_iter"] = maxIter
	return lr, nil
}

func (lr *LogisticRegression) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	lr.Classes = ExtractClasses(y)
	Xf := toFloatMatrix(X)
	yIdx := classIndexes(y, lr.Classes)

	k, d := len(lr.Classes), len(Xf[0])
	stride := d + 1

	objective := func(theta, grad []float64) float64 {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		loss := 0.0
		scores := make([]float64, k)
		for c := 0; c < k; c++ {
			w := theta[c*stride : c*stride+d]
			for j := range w {
				loss += 0.5 * w[j] * w[j]
				if grad != nil {
					grad[c*stride+j] = w[j]
				}
			}
		}

		for i, row := range Xf {
			for c := 0; c < k; c++ {
				s := theta[c*stride+d]
				for j, x := range row {
					s += theta[c*stride+j] * x
				}
				scores[c] = s
			}
			softmax(scores)
			loss -= lr.C * math.Log(math.Max(scores[yIdx[i]], 1e-300))
			if grad == nil {
				continue
			}
			for c := 0; c < k; c++ {
				g := scores[c]
				if c == yIdx[i] {
					g--
				}
				g *= lr.C
				for j, x := range row {
					grad[c*stride+j] += g * x
				}
				grad[c*stride+d] += g
			}
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 { return objective(theta, nil) },
		Grad: func(grad, theta []float64) { objective(theta, grad) },
	}
	settings := &optimize.Settings{
		MajorIterations:   lr.MaxIter,
		GradientThreshold: lr.Tol,
	}

	var method optimize.Method = &optimize.LBFGS{}
	if lr.Solver == "saga" {
		method = &optimize.GradientDescent{}
	}

	result, err := optimize.Minimize(problem, make([]float64, k*stride), settings, method)
	if result == nil {
		return fmt.Errorf("logistic regression optimization failed: %w", err)
	}
	// line-search stalls still leave a usable iterate
	theta := result.X

	lr.Weights = make([][]float64, k)
	lr.Intercepts = make([]float64, k)
	for c := 0; c < k; c++ {
		lr.Weights[c] = append([]float64(nil), theta[c*stride:c*stride+d]...)
		lr.Intercepts[c] = theta[c*stride+d]
	}
	return nil
}

func (lr *LogisticRegression) scores(sample []float64) []float64 {
	out := make([]float64, len(lr.Classes))
	for c, w := range lr.Weights {
		s := lr.Intercepts[c]
		for j, x := range sample {
			s += w[j] * x
		}
		out[c] = s
	}
	return out
}

func (lr *LogisticRegression) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(lr.PredictProba(X), lr.Classes)
}

func (lr *LogisticRegression) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	for i, sample := range X {
		s := lr.scores(toFloatRow(sample))
		softmax(s)
		proba[i] = toDecimalRow(s)
	}
	return proba
}

func (lr *LogisticRegression) Coefficients() ([][]float64, error) {
	if lr.Weights == nil {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(lr.Weights))
	for i, w := range lr.Weights {
		out[i] = append([]float64(nil), w...)
	}
	return out, nil
}

func (lr *LogisticRegression) Reset() {
	lr.Weights = nil
	lr.Intercepts = nil
	lr.Classes = nil
}
