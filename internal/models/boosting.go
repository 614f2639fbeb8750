package models

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// GradientBoosting fits one regression tree per class and stage on the
// softmax residuals, with Newton-step leaf values.
type GradientBoosting struct {
	BaseModel
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Subsample       float64
	RandomState     int64
	InitScores      []float64
	Stages          [][]*TreeNode
	Importances     []float64
}

func NewGradientBoosting(nEstimators int, learningRate float64, maxDepth int) *GradientBoosting {
	if nEstimators <= 0 {
		nEstimators = 100
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	gb := &GradientBoosting{
		NEstimators:     nEstimators,
		LearningRate:    learningRate,
		MaxDepth:        maxDepth,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Subsample:       1,
		RandomState:     42,
		BaseModel: BaseModel{
			Name:   "GradientBoosting",
			Family: FamilyGradientBoosting,
		},
	}
	gb.syncParams()
	return gb
}

func newGradientBoostingFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyGradientBoosting, params)
	nEstimators := r.Int("n_estimators", 100)
	learningRate := r.Float("learning_rate", 0.1)
	maxDepth := r.Int("max_depth", 3)
	minSplit := r.Int("min_samples_split", 2)
	minLeaf := r.Int("min_samples_leaf", 1)
	subsample := r.Float("subsample", 1)
	seed := r.Int("random_state", 42)
	r.AtLeast("n_estimators", nEstimators, 1)
	r.Positive("learning_rate", learningRate)
	r.AtLeast("max_depth", maxDepth, 1)
	r.AtLeast("min_samples_split", minSplit, 2)
	r.AtLeast("min_samples_leaf", minLeaf, 1)
	r.Fraction("subsample", subsample)
	if err := r.err(); err != nil {
		return nil, err
	}

	gb := NewGradientBoosting(nEstimators, learningRate, maxDepth)
	gb.MinSamplesSplit = minSplit
	gb.MinSamplesLeaf = minLeaf
	gb.Subsample = subsample
	gb.RandomState = int64(seed)
	gb.syncParams()
	return gb, nil
}

func (gb *GradientBoosting) syncParams() {
	gb.Params = map[string]any{
		"n_estimators":      gb.NEstimators,
		"learning_rate":     gb.LearningRate,
		"max_depth":         gb.MaxDepth,
		"min_samples_split": gb.MinSamplesSplit,
		"min_samples_leaf":  gb.MinSamplesLeaf,
		"subsample":         gb.Subsample,
		"random_state":      int(gb.RandomState),
	}
}

func (gb *GradientBoosting) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	gb.Classes = ExtractClasses(y)
	Xf := toFloatMatrix(X)
	yIdx := classIndexes(y, gb.Classes)
	n, k := len(Xf), len(gb.Classes)

	gb.InitScores = make([]float64, k)
	for _, c := range yIdx {
		gb.InitScores[c]++
	}
	for c := range gb.InitScores {
		gb.InitScores[c] = math.Log(math.Max(gb.InitScores[c]/float64(n), 1e-12))
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), gb.InitScores...)
	}

	rng := rand.New(rand.NewSource(gb.RandomState))
	gb.Stages = make([][]*TreeNode, 0, gb.NEstimators)
	gb.Importances = make([]float64, len(Xf[0]))
	factor := float64(k-1) / float64(k)
	if k == 1 {
		factor = 1
	}

	proba := make([]float64, k)
	residuals := make([][]float64, k)
	for c := range residuals {
		residuals[c] = make([]float64, n)
	}

	for m := 0; m < gb.NEstimators; m++ {
		for i := range scores {
			copy(proba, scores[i])
			softmax(proba)
			for c := 0; c < k; c++ {
				target := 0.0
				if yIdx[i] == c {
					target = 1
				}
				residuals[c][i] = target - proba[c]
			}
		}

		idx := gb.sampleRows(n, rng)
		stage := make([]*TreeNode, k)
		for c := 0; c < k; c++ {
			r := residuals[c]
			b := &treeBuilder{
				X: Xf,
				crit: &mseCriterion{
					target: r,
					leafValue: func(rows []int) float64 {
						num, den := 0.0, 0.0
						for _, i := range rows {
							num += r[i]
							den += math.Abs(r[i]) * (1 - math.Abs(r[i]))
						}
						if den < 1e-150 {
							return 0
						}
						return factor * num / den
					},
				},
				maxDepth:        gb.MaxDepth,
				minSamplesSplit: gb.MinSamplesSplit,
				minSamplesLeaf:  gb.MinSamplesLeaf,
			}
			tree := b.build(idx)
			normalize(b.importances)
			for j, v := range b.importances {
				gb.Importances[j] += v
			}
			stage[c] = tree

			for i := range scores {
				scores[i][c] += gb.LearningRate * tree.leafFor(Xf[i]).Value
			}
		}
		gb.Stages = append(gb.Stages, stage)
	}

	normalize(gb.Importances)
	return nil
}

// sampleRows draws a subsample without replacement, or every row when
// Subsample is 1.
func (gb *GradientBoosting) sampleRows(n int, rng *rand.Rand) []int {
	if gb.Subsample >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	size := max(1, int(gb.Subsample*float64(n)))
	return rng.Perm(n)[:size]
}

func (gb *GradientBoosting) rawScores(sample []float64) []float64 {
	out := append([]float64(nil), gb.InitScores...)
	for _, stage := range gb.Stages {
		for c, tree := range stage {
			out[c] += gb.LearningRate * tree.leafFor(sample).Value
		}
	}
	return out
}

func (gb *GradientBoosting) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(gb.PredictProba(X), gb.Classes)
}

func (gb *GradientBoosting) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	for i, sample := range X {
		s := gb.rawScores(toFloatRow(sample))
		softmax(s)
		proba[i] = toDecimalRow(s)
	}
	return proba
}

func (gb *GradientBoosting) FeatureImportances() ([]float64, error) {
	if gb.Stages == nil {
		return nil, ErrNotFitted
	}
	return append([]float64(nil), gb.Importances...), nil
}

func (gb *GradientBoosting) Reset() {
	gb.InitScores = nil
	gb.Stages = nil
	gb.Importances = nil
	gb.Classes = nil
}
