package models

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SVM is a one-vs-rest kernel support vector classifier trained with a
// simplified SMO solver. Probabilities are a softmax over the per-class
// decision values.
type SVM struct {
	BaseModel
	C              float64
	Kernel         string
	GammaMode      string
	GammaValue     float64
	Degree         int
	Coef0          float64
	Tol            float64
	MaxPasses      int
	MaxIter        int
	RandomState    int64
	Gamma          float64
	NFeatures      int
	SupportVectors [][]float64
	DualCoef       [][]float64
	Intercepts     []float64
}

func NewSVM(c float64, kernel string, gamma any) *SVM {
	if c <= 0 {
		c = 1
	}
	if kernel != "linear" && kernel != "rbf" && kernel != "poly" {
		kernel = "rbf"
	}
	s := &SVM{
		C:           c,
		Kernel:      kernel,
		GammaMode:   "scale",
		Degree:      3,
		Tol:         1e-3,
		MaxPasses:   5,
		MaxIter:     200,
		RandomState: 42,
		BaseModel: BaseModel{
			Name:   "SVM",
			Family: FamilySVM,
		},
	}
	switch g := gamma.(type) {
	case string:
		if g == "auto" {
			s.GammaMode = "auto"
		}
	case float64:
		s.GammaMode = "value"
		s.GammaValue = g
	}
	s.syncParams()
	return s
}

func newSVMFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilySVM, params)
	c := r.Float("C", 1)
	kernel := r.String("kernel", "rbf", "linear", "rbf", "poly")
	gamma := r.FloatOrChoice("gamma", "scale", "scale", "auto")
	degree := r.Int("degree", 3)
	coef0 := r.Float("coef0", 0)
	seed := r.Int("random_state", 42)
	r.Positive("C", c)
	r.AtLeast("degree", degree, 1)
	if err := r.err(); err != nil {
		return nil, err
	}
	s := NewSVM(c, kernel, gamma)
	s.Degree = degree
	s.Coef0 = coef0
	s.RandomState = int64(seed)
	s.syncParams()
	return s, nil
}

func (s *SVM) syncParams() {
	var gamma any = s.GammaMode
	if s.GammaMode == "value" {
		gamma = s.GammaValue
	}
	s.Params = map[string]any{
		"C":            s.C,
		"kernel":       s.Kernel,
		"gamma":        gamma,
		"degree":       s.Degree,
		"coef0":        s.Coef0,
		"random_state": int(s.RandomState),
	}
}

func (s *SVM) resolveGamma(X [][]float64) float64 {
	d := float64(len(X[0]))
	switch s.GammaMode {
	case "value":
		return s.GammaValue
	case "auto":
		return 1 / d
	}
	all := make([]float64, 0, len(X)*len(X[0]))
	for _, row := range X {
		all = append(all, row...)
	}
	_, v := stat.PopMeanVariance(all, nil)
	if v == 0 {
		return 1 / d
	}
	return 1 / (d * v)
}

func (s *SVM) kernel(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	switch s.Kernel {
	case "linear":
		return dot
	case "poly":
		return math.Pow(s.Gamma*dot+s.Coef0, float64(s.Degree))
	default:
		dist := 0.0
		for i := range a {
			diff := a[i] - b[i]
			dist += diff * diff
		}
		return math.Exp(-s.Gamma * dist)
	}
}

func (s *SVM) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	s.Classes = ExtractClasses(y)
	if len(s.Classes) < 2 {
		return fmt.Errorf("svm needs at least 2 classes, got %d", len(s.Classes))
	}

	Xf := toFloatMatrix(X)
	s.NFeatures = len(Xf[0])
	s.Gamma = s.resolveGamma(Xf)

	n := len(Xf)
	gram := make([][]float64, n)
	for i := range gram {
		gram[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := s.kernel(Xf[i], Xf[j])
			gram[i][j] = v
			gram[j][i] = v
		}
	}

	rng := rand.New(rand.NewSource(s.RandomState))
	alphas := make([][]float64, len(s.Classes))
	s.Intercepts = make([]float64, len(s.Classes))
	for k, class := range s.Classes {
		target := make([]float64, n)
		for i, label := range y {
			if label == class {
				target[i] = 1
			} else {
				target[i] = -1
			}
		}
		alphas[k], s.Intercepts[k] = s.smo(gram, target, rng)
		for i := range alphas[k] {
			alphas[k][i] *= target[i]
		}
	}

	// keep rows that are a support vector for any class
	var support []int
	for i := 0; i < n; i++ {
		for k := range alphas {
			if math.Abs(alphas[k][i]) > 1e-8 {
				support = append(support, i)
				break
			}
		}
	}
	s.SupportVectors = make([][]float64, len(support))
	s.DualCoef = make([][]float64, len(s.Classes))
	for k := range s.DualCoef {
		s.DualCoef[k] = make([]float64, len(support))
	}
	for p, i := range support {
		s.SupportVectors[p] = Xf[i]
		for k := range alphas {
			s.DualCoef[k][p] = alphas[k][i]
		}
	}
	return nil
}

// smo solves one binary problem and returns the multipliers and the bias.
// f caches the decision value of every training sample.
func (s *SVM) smo(gram [][]float64, target []float64, rng *rand.Rand) ([]float64, float64) {
	n := len(target)
	alpha := make([]float64, n)
	f := make([]float64, n)
	b := 0.0

	passes, iter := 0, 0
	for passes < s.MaxPasses && iter < s.MaxIter {
		changed := 0
		for i := 0; i < n; i++ {
			ei := f[i] + b - target[i]
			if !((target[i]*ei < -s.Tol && alpha[i] < s.C) || (target[i]*ei > s.Tol && alpha[i] > 0)) {
				continue
			}

			j := rng.Intn(n - 1)
			if j >= i {
				j++
			}
			ej := f[j] + b - target[j]

			ai, aj := alpha[i], alpha[j]
			var lo, hi float64
			if target[i] != target[j] {
				lo, hi = math.Max(0, aj-ai), math.Min(s.C, s.C+aj-ai)
			} else {
				lo, hi = math.Max(0, ai+aj-s.C), math.Min(s.C, ai+aj)
			}
			if lo >= hi {
				continue
			}

			eta := 2*gram[i][j] - gram[i][i] - gram[j][j]
			if eta >= 0 {
				continue
			}

			newAj := aj - target[j]*(ei-ej)/eta
			newAj = math.Min(hi, math.Max(lo, newAj))
			if math.Abs(newAj-aj) < 1e-5 {
				continue
			}
			newAi := ai + target[i]*target[j]*(aj-newAj)

			b1 := b - ei - target[i]*(newAi-ai)*gram[i][i] - target[j]*(newAj-aj)*gram[i][j]
			b2 := b - ej - target[i]*(newAi-ai)*gram[i][j] - target[j]*(newAj-aj)*gram[j][j]
			switch {
			case newAi > 0 && newAi < s.C:
				b = b1
			case newAj > 0 && newAj < s.C:
				b = b2
			default:
				b = (b1 + b2) / 2
			}

			di, dj := (newAi-ai)*target[i], (newAj-aj)*target[j]
			for m := 0; m < n; m++ {
				f[m] += di*gram[i][m] + dj*gram[j][m]
			}
			alpha[i], alpha[j] = newAi, newAj
			changed++
		}
		if changed == 0 {
			passes++
		} else {
			passes = 0
		}
		iter++
	}
	return alpha, b
}

func (s *SVM) decision(sample []float64) []float64 {
	out := make([]float64, len(s.Classes))
	kv := make([]float64, len(s.SupportVectors))
	for p, sv := range s.SupportVectors {
		kv[p] = s.kernel(sv, sample)
	}
	for k := range s.Classes {
		out[k] = floats.Dot(s.DualCoef[k], kv) + s.Intercepts[k]
	}
	return out
}

func (s *SVM) Predict(X [][]decimal.Decimal) []int {
	predictions := make([]int, len(X))
	for i, sample := range X {
		predictions[i] = s.Classes[floats.MaxIdx(s.decision(toFloatRow(sample)))]
	}
	return predictions
}

func (s *SVM) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	for i, sample := range X {
		d := s.decision(toFloatRow(sample))
		softmax(d)
		proba[i] = toDecimalRow(d)
	}
	return proba
}

// Coefficients returns the primal weights, which only exist for the linear
// kernel.
func (s *SVM) Coefficients() ([][]float64, error) {
	if s.Kernel != "linear" {
		return nil, fmt.Errorf("%s kernel: %w", s.Kernel, ErrNotLinear)
	}
	if s.DualCoef == nil {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(s.Classes))
	for k := range out {
		w := make([]float64, s.NFeatures)
		for p, sv := range s.SupportVectors {
			floats.AddScaled(w, s.DualCoef[k][p], sv)
		}
		out[k] = w
	}
	return out, nil
}

func (s *SVM) Reset() {
	s.SupportVectors = nil
	s.DualCoef = nil
	s.Intercepts = nil
	s.Classes = nil
}
