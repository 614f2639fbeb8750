package models

import (
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

const minImpurity = 1e-12

// TreeNode is shared by classification and regression trees. Every node
// keeps its class distribution (Counts) or its fitted value (Value).
type TreeNode struct {
	IsLeaf    bool
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Samples   int
	Impurity  float64
	Counts    []float64
	Value     float64
}

func (n *TreeNode) leafFor(sample []float64) *TreeNode {
	node := n
	for !node.IsLeaf {
		if sample[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// criterion scores candidate splits for the tree builder.
type criterion interface {
	impurity(idx []int) float64
	// bestSplit scans samples sorted by one feature and returns the size of
	// the left side of the best split and the weighted child impurity.
	bestSplit(sorted []int, values []float64, minLeaf int) (int, float64)
	leaf(node *TreeNode, idx []int)
}

type giniCriterion struct {
	y        []int
	nClasses int
}

func (g *giniCriterion) counts(idx []int) []float64 {
	c := make([]float64, g.nClasses)
	for _, i := range idx {
		c[g.y[i]]++
	}
	return c
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	imp := 1.0
	for _, c := range counts {
		p := c / n
		imp -= p * p
	}
	return imp
}

func (g *giniCriterion) impurity(idx []int) float64 {
	return gini(g.counts(idx), float64(len(idx)))
}

func (g *giniCriterion) bestSplit(sorted []int, values []float64, minLeaf int) (int, float64) {
	n := len(sorted)
	right := g.counts(sorted)
	left := make([]float64, g.nClasses)
	bestPos, bestImp := 0, math.Inf(1)

	for i := 0; i < n-1; i++ {
		c := g.y[sorted[i]]
		left[c]++
		right[c]--
		if values[i] == values[i+1] {
			continue
		}
		nl, nr := i+1, n-i-1
		if nl < minLeaf || nr < minLeaf {
			continue
		}
		imp := (float64(nl)*gini(left, float64(nl)) + float64(nr)*gini(right, float64(nr))) / float64(n)
		if imp < bestImp {
			bestPos, bestImp = nl, imp
		}
	}
	return bestPos, bestImp
}

func (g *giniCriterion) leaf(node *TreeNode, idx []int) {
	node.Counts = g.counts(idx)
}

type mseCriterion struct {
	target    []float64
	leafValue func(idx []int) float64
}

func (m *mseCriterion) impurity(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += m.target[i]
		sumSq += m.target[i] * m.target[i]
	}
	n := float64(len(idx))
	return math.Max(sumSq/n-(sum/n)*(sum/n), 0)
}

func (m *mseCriterion) bestSplit(sorted []int, values []float64, minLeaf int) (int, float64) {
	n := len(sorted)
	totalSum, totalSq := 0.0, 0.0
	for _, i := range sorted {
		totalSum += m.target[i]
		totalSq += m.target[i] * m.target[i]
	}

	bestPos, bestImp := 0, math.Inf(1)
	leftSum, leftSq := 0.0, 0.0
	for i := 0; i < n-1; i++ {
		t := m.target[sorted[i]]
		leftSum += t
		leftSq += t * t
		if values[i] == values[i+1] {
			continue
		}
		nl, nr := float64(i+1), float64(n-i-1)
		if i+1 < minLeaf || n-i-1 < minLeaf {
			continue
		}
		rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
		sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
		imp := sse / float64(n)
		if imp < bestImp {
			bestPos, bestImp = i+1, imp
		}
	}
	return bestPos, bestImp
}

func (m *mseCriterion) leaf(node *TreeNode, idx []int) {
	if m.leafValue != nil {
		node.Value = m.leafValue(idx)
		return
	}
	sum := 0.0
	for _, i := range idx {
		sum += m.target[i]
	}
	if len(idx) > 0 {
		node.Value = sum / float64(len(idx))
	}
}

type treeBuilder struct {
	X               [][]float64
	crit            criterion
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	rng             *rand.Rand
	importances     []float64
}

func (b *treeBuilder) build(idx []int) *TreeNode {
	b.importances = make([]float64, len(b.X[0]))
	root := b.grow(idx, 0)
	total := float64(len(idx))
	for j := range b.importances {
		b.importances[j] /= total
	}
	return root
}

func (b *treeBuilder) grow(idx []int, depth int) *TreeNode {
	node := &TreeNode{Samples: len(idx), Impurity: b.crit.impurity(idx)}
	b.crit.leaf(node, idx)

	if (b.maxDepth > 0 && depth >= b.maxDepth) ||
		len(idx) < b.minSamplesSplit ||
		len(idx) < 2*b.minSamplesLeaf ||
		node.Impurity <= minImpurity {
		node.IsLeaf = true
		return node
	}

	bestFeature, bestPos := -1, 0
	bestImp := node.Impurity
	var bestSorted []int
	var bestVals []float64

	for _, f := range b.candidateFeatures() {
		sorted := append([]int(nil), idx...)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })
		values := make([]float64, len(sorted))
		for i, s := range sorted {
			values[i] = b.X[s][f]
		}

		pos, imp := b.crit.bestSplit(sorted, values, b.minSamplesLeaf)
		if pos > 0 && imp < bestImp-minImpurity {
			bestFeature, bestPos, bestImp = f, pos, imp
			bestSorted, bestVals = sorted, values
		}
	}

	if bestFeature < 0 {
		node.IsLeaf = true
		return node
	}

	threshold := (bestVals[bestPos-1] + bestVals[bestPos]) / 2
	if threshold >= bestVals[bestPos] {
		threshold = bestVals[bestPos-1]
	}

	node.Feature = bestFeature
	node.Threshold = threshold
	b.importances[bestFeature] += float64(len(idx)) * (node.Impurity - bestImp)

	node.Left = b.grow(bestSorted[:bestPos], depth+1)
	node.Right = b.grow(bestSorted[bestPos:], depth+1)
	return node
}

// candidateFeatures draws maxFeatures distinct features per split, or all
// of them when no limit is set.
func (b *treeBuilder) candidateFeatures() []int {
	n := len(b.X[0])
	features := make([]int, n)
	for i := range features {
		features[i] = i
	}
	if b.maxFeatures <= 0 || b.maxFeatures >= n || b.rng == nil {
		return features
	}
	for i := 0; i < b.maxFeatures; i++ {
		j := i + b.rng.Intn(n-i)
		features[i], features[j] = features[j], features[i]
	}
	return features[:b.maxFeatures]
}

// resolveMaxFeatures turns "sqrt", "log2" or "" (all) into a count.
func resolveMaxFeatures(mode string, nFeatures int) int {
	switch mode {
	case "sqrt":
		return max(1, int(math.Sqrt(float64(nFeatures))))
	case "log2":
		return max(1, int(math.Log2(float64(nFeatures))))
	default:
		return nFeatures
	}
}

type DecisionTree struct {
	BaseModel
	Root            *TreeNode
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	RandomState     int64
	Importances     []float64
}

func NewDecisionTree(maxDepth, minSamplesSplit, minSamplesLeaf int) *DecisionTree {
	if maxDepth < 0 {
		maxDepth = 0
	}
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		MinSamplesLeaf:  minSamplesLeaf,
		RandomState:     42,
		BaseModel: BaseModel{
			Name:   "DecisionTree",
			Family: FamilyDecisionTree,
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
				"min_samples_leaf":  minSamplesLeaf,
			},
		},
	}
}

func newDecisionTreeFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyDecisionTree, params)
	dt := NewDecisionTree(
		r.Int("max_depth", 0),
		r.Int("min_samples_split", 2),
		r.Int("min_samples_leaf", 1),
	)
	dt.MaxFeatures = r.String("max_features", "", "", "sqrt", "log2")
	dt.RandomState = int64(r.Int("random_state", 42))
	if err := r.err(); err != nil {
		return nil, err
	}
	dt.Params["max_features"] = dt.MaxFeatures
	dt.Params["random_state"] = int(dt.RandomState)
	return dt, nil
}

func (dt *DecisionTree) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	dt.Classes = ExtractClasses(y)

	Xf := toFloatMatrix(X)
	idx := make([]int, len(Xf))
	for i := range idx {
		idx[i] = i
	}
	dt.fitIndices(Xf, classIndexes(y, dt.Classes), idx, rand.New(rand.NewSource(dt.RandomState)))
	return nil
}

// fitIndices grows the tree on the rows named by idx, which may repeat.
// yIdx holds class positions relative to dt.Classes.
func (dt *DecisionTree) fitIndices(X [][]float64, yIdx []int, idx []int, rng *rand.Rand) {
	b := &treeBuilder{
		X:               X,
		crit:            &giniCriterion{y: yIdx, nClasses: len(dt.Classes)},
		maxDepth:        dt.MaxDepth,
		minSamplesSplit: dt.MinSamplesSplit,
		minSamplesLeaf:  dt.MinSamplesLeaf,
		maxFeatures:     resolveMaxFeatures(dt.MaxFeatures, len(X[0])),
		rng:             rng,
	}
	dt.Root = b.build(idx)
	dt.Importances = b.importances
	normalize(dt.Importances)
}

func (dt *DecisionTree) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(dt.PredictProba(X), dt.Classes)
}

func (dt *DecisionTree) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	for i, sample := range X {
		proba[i] = toDecimalRow(dt.probaFloat(toFloatRow(sample)))
	}
	return proba
}

func (dt *DecisionTree) probaFloat(sample []float64) []float64 {
	leaf := dt.Root.leafFor(sample)
	p := append([]float64(nil), leaf.Counts...)
	normalize(p)
	return p
}

func (dt *DecisionTree) FeatureImportances() ([]float64, error) {
	if dt.Root == nil {
		return nil, ErrNotFitted
	}
	return append([]float64(nil), dt.Importances...), nil
}

func (dt *DecisionTree) Reset() {
	dt.Root = nil
	dt.Classes = nil
	dt.Importances = nil
}
