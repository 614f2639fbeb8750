package models

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/shopspring/decimal"
)

type RandomForest struct {
	BaseModel
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     int64
	MaxWorkers      int
	Trees           []*DecisionTree
	Importances     []float64
}

func NewRandomForest(nEstimators, maxDepth, minSamplesSplit, minSamplesLeaf int) *RandomForest {
	if nEstimators <= 0 {
		nEstimators = 100
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}

	rf := &RandomForest{
		NEstimators:     nEstimators,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
		RandomState:     42,
		MaxWorkers:      runtime.NumCPU(),
		BaseModel: BaseModel{
			Name:   "RandomForest",
			Family: FamilyRandomForest,
		},
	}
	rf.syncParams()
	return rf
}

func newRandomForestFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyRandomForest, params)
	nEstimators := r.Int("n_estimators", 100)
	rf := NewRandomForest(
		nEstimators,
		r.Int("max_depth", 0),
		r.Int("min_samples_split", 2),
		r.Int("min_samples_leaf", 1),
	)
	rf.Bootstrap = r.Bool("bootstrap", true)
	rf.MaxFeatures = r.String("max_features", "sqrt", "", "sqrt", "log2")
	rf.RandomState = int64(r.Int("random_state", 42))
	r.AtLeast("n_estimators", nEstimators, 1)
	if err := r.err(); err != nil {
		return nil, err
	}
	rf.syncParams()
	return rf, nil
}

func (rf *RandomForest) syncParams() {
	rf.Params = map[string]any{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"max_features":      rf.MaxFeatures,
		"bootstrap":         rf.Bootstrap,
		"random_state":      int(rf.RandomState),
	}
}

func (rf *RandomForest) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	rf.Classes = ExtractClasses(y)
	Xf := toFloatMatrix(X)
	yIdx := classIndexes(y, rf.Classes)

	rf.Trees = make([]*DecisionTree, rf.NEstimators)
	rf.trainParallel(Xf, yIdx)

	rf.Importances = make([]float64, len(Xf[0]))
	for _, tree := range rf.Trees {
		for j, v := range tree.Importances {
			rf.Importances[j] += v
		}
	}
	normalize(rf.Importances)
	return nil
}

func (rf *RandomForest) trainParallel(X [][]float64, yIdx []int) {
	var wg sync.WaitGroup

	workers := min(max(rf.MaxWorkers, 1), rf.NEstimators)
	jobs := make(chan int, rf.NEstimators)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rf.Trees[i] = rf.trainSingleTree(X, yIdx, rf.RandomState+int64(i))
			}
		}()
	}

	for i := 0; i < rf.NEstimators; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
}

func (rf *RandomForest) trainSingleTree(X [][]float64, yIdx []int, seed int64) *DecisionTree {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	idx := make([]int, n)
	for i := range idx {
		if rf.Bootstrap {
			idx[i] = r.Intn(n)
		} else {
			idx[i] = i
		}
	}

	tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit, rf.MinSamplesLeaf)
	tree.MaxFeatures = rf.MaxFeatures
	tree.RandomState = seed
	tree.Classes = rf.Classes
	tree.fitIndices(X, yIdx, idx, r)
	return tree
}

func (rf *RandomForest) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(rf.PredictProba(X), rf.Classes)
}

// PredictProba averages the class distributions of all trees.
func (rf *RandomForest) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))

	for i, sample := range X {
		xf := toFloatRow(sample)
		avg := make([]float64, len(rf.Classes))
		for _, tree := range rf.Trees {
			for k, p := range tree.probaFloat(xf) {
				avg[k] += p
			}
		}
		for k := range avg {
			avg[k] /= float64(len(rf.Trees))
		}
		proba[i] = toDecimalRow(avg)
	}

	return proba
}

func (rf *RandomForest) FeatureImportances() ([]float64, error) {
	if rf.Trees == nil {
		return nil, ErrNotFitted
	}
	return append([]float64(nil), rf.Importances...), nil
}

func (rf *RandomForest) Reset() {
	rf.Trees = nil
	rf.Importances = nil
	rf.Classes = nil
}
