package models

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"
)

// Layer stores a dense layer as row-major weights (In x Out) and biases.
type Layer struct {
	In      int
	Out     int
	Weights []float64
	Biases  []float64
}

func (l Layer) weights() *mat.Dense {
	return mat.NewDense(l.In, l.Out, l.Weights)
}

// MLP is a feed-forward network with a softmax output trained on
// cross-entropy with an L2 penalty.
type MLP struct {
	BaseModel
	HiddenLayerSizes []int
	Activation       string
	Solver           string
	Alpha            float64
	LearningRate     string
	LearningRateInit float64
	MaxIter          int
	BatchSize        int
	Tol              float64
	NIterNoChange    int
	Momentum         float64
	RandomState      int64
	Layers           []Layer
	LossCurve        []float64
}

func NewMLP(hidden []int, activation, solver string, alpha float64, learningRate string) *MLP {
	if len(hidden) == 0 {
		hidden = []int{100}
	}
	if activation != "relu" && activation != "tanh" && activation != "logistic" {
		activation = "relu"
	}
	if solver != "adam" && solver != "sgd" {
		solver = "adam"
	}
	if learningRate != "constant" && learningRate != "adaptive" {
		learningRate = "constant"
	}
	if alpha < 0 {
		alpha = 0.0001
	}
	m := &MLP{
		HiddenLayerSizes: append([]int(nil), hidden...),
		Activation:       activation,
		Solver:           solver,
		Alpha:            alpha,
		LearningRate:     learningRate,
		LearningRateInit: 0.001,
		MaxIter:          500,
		BatchSize:        200,
		Tol:              1e-4,
		NIterNoChange:    10,
		Momentum:         0.9,
		RandomState:      42,
		BaseModel: BaseModel{
			Name:   "MLP",
			Family: FamilyMLP,
		},
	}
	m.syncParams()
	return m
}

func newMLPFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyMLP, params)
	hidden := r.IntSlice("hidden_layer_sizes", []int{100})
	activation := r.String("activation", "relu", "relu", "tanh", "logistic")
	solver := r.String("solver", "adam", "adam", "sgd")
	alpha := r.Float("alpha", 0.0001)
	learningRate := r.String("learning_rate", "constant", "constant", "adaptive")
	lrInit := r.Float("learning_rate_init", 0.001)
	maxIter := r.Int("max_iter", 500)
	seed := r.Int("random_state", 42)
	for _, h := range hidden {
		r.AtLeast("hidden_layer_sizes", h, 1)
	}
	r.Positive("learning_rate_init", lrInit)
	r.AtLeast("max_iter", maxIter, 1)
	if err := r.err(); err != nil {
		return nil, err
	}
	m := NewMLP(hidden, activation, solver, alpha, learningRate)
	m.LearningRateInit = lrInit
	m.MaxIter = maxIter
	m.RandomState = int64(seed)
	m.syncParams()
	return m, nil
}

func (m *MLP) syncParams() {
	m.Params = map[string]any{
		"hidden_layer_sizes": append([]int(nil), m.HiddenLayerSizes...),
		"activation":         m.Activation,
		"solver":             m.Solver,
		"alpha":              m.Alpha,
		"learning_rate":      m.LearningRate,
		"learning_rate_init": m.LearningRateInit,
		"max_iter":           m.MaxIter,
		"random_state":       int(m.RandomState),
	}
}

func (m *MLP) activate(z *mat.Dense) {
	switch m.Activation {
	case "tanh":
		z.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
	case "logistic":
		z.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, z)
	default:
		z.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, z)
	}
}

// derivative multiplies delta in place by the activation derivative,
// expressed through the activated output a.
func (m *MLP) derivative(delta, a *mat.Dense) {
	switch m.Activation {
	case "tanh":
		delta.Apply(func(i, j int, v float64) float64 {
			out := a.At(i, j)
			return v * (1 - out*out)
		}, delta)
	case "logistic":
		delta.Apply(func(i, j int, v float64) float64 {
			out := a.At(i, j)
			return v * out * (1 - out)
		}, delta)
	default:
		delta.Apply(func(i, j int, v float64) float64 {
			if a.At(i, j) <= 0 {
				return 0
			}
			return v
		}, delta)
	}
}

// forward returns the activations of every layer, input included.
func (m *MLP) forward(X *mat.Dense) []*mat.Dense {
	acts := []*mat.Dense{X}
	for li, layer := range m.Layers {
		rows, _ := acts[li].Dims()
		z := mat.NewDense(rows, layer.Out, nil)
		z.Mul(acts[li], layer.weights())
		z.Apply(func(_, j int, v float64) float64 { return v + layer.Biases[j] }, z)
		if li < len(m.Layers)-1 {
			m.activate(z)
		} else {
			for i := 0; i < rows; i++ {
				softmax(z.RawRowView(i))
			}
		}
		acts = append(acts, z)
	}
	return acts
}

func (m *MLP) initLayers(nIn, nOut int, rng *rand.Rand) {
	sizes := append([]int{nIn}, m.HiddenLayerSizes...)
	sizes = append(sizes, nOut)
	m.Layers = make([]Layer, len(sizes)-1)
	for i := range m.Layers {
		in, out := sizes[i], sizes[i+1]
		factor := 6.0
		if m.Activation == "logistic" {
			factor = 2.0
		}
		bound := math.Sqrt(factor / float64(in+out))
		l := Layer{In: in, Out: out, Weights: make([]float64, in*out), Biases: make([]float64, out)}
		for k := range l.Weights {
			l.Weights[k] = (rng.Float64()*2 - 1) * bound
		}
		for k := range l.Biases {
			l.Biases[k] = (rng.Float64()*2 - 1) * bound
		}
		m.Layers[i] = l
	}
}

type optimizerState struct {
	velocity []float64
	moment   []float64
	step     int
}

func (m *MLP) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	m.Classes = ExtractClasses(y)
	Xf := toFloatMatrix(X)
	yIdx := classIndexes(y, m.Classes)
	n, d, k := len(Xf), len(Xf[0]), len(m.Classes)

	rng := rand.New(rand.NewSource(m.RandomState))
	m.initLayers(d, k, rng)
	m.LossCurve = nil

	// one optimizer state per weight and bias slice
	states := make([]optimizerState, 2*len(m.Layers))
	for i, l := range m.Layers {
		states[2*i] = optimizerState{velocity: make([]float64, len(l.Weights)), moment: make([]float64, len(l.Weights))}
		states[2*i+1] = optimizerState{velocity: make([]float64, len(l.Biases)), moment: make([]float64, len(l.Biases))}
	}

	batch := min(m.BatchSize, n)
	lr := m.LearningRateInit
	best := math.Inf(1)
	noImprove := 0
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < m.MaxIter; epoch++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		epochLoss := 0.0

		for start := 0; start < n; start += batch {
			end := min(start+batch, n)
			rows := order[start:end]

			xb := mat.NewDense(len(rows), d, nil)
			for r, idx := range rows {
				xb.SetRow(r, Xf[idx])
			}
			epochLoss += m.step(xb, rows, yIdx, states, lr) * float64(len(rows))
		}
		epochLoss /= float64(n)
		m.LossCurve = append(m.LossCurve, epochLoss)

		if epochLoss > best-m.Tol {
			noImprove++
		} else {
			noImprove = 0
		}
		best = math.Min(best, epochLoss)

		if noImprove > m.NIterNoChange {
			if m.Solver == "sgd" && m.LearningRate == "adaptive" && lr > 1e-6 {
				lr /= 5
				noImprove = 0
				continue
			}
			break
		}
	}
	return nil
}

// step runs one mini-batch update and returns the batch loss.
func (m *MLP) step(xb *mat.Dense, rows []int, yIdx []int, states []optimizerState, lr float64) float64 {
	acts := m.forward(xb)
	out := acts[len(acts)-1]
	b := float64(len(rows))

	loss := 0.0
	delta := mat.DenseCopyOf(out)
	for r, idx := range rows {
		c := yIdx[idx]
		loss -= math.Log(math.Max(out.At(r, c), 1e-300))
		delta.Set(r, c, delta.At(r, c)-1)
	}
	delta.Scale(1/b, delta)

	sq := 0.0
	for _, l := range m.Layers {
		for _, w := range l.Weights {
			sq += w * w
		}
	}
	loss = loss/b + 0.5*m.Alpha*sq/b

	for li := len(m.Layers) - 1; li >= 0; li-- {
		layer := m.Layers[li]
		prev := acts[li]

		gradW := mat.NewDense(layer.In, layer.Out, nil)
		gradW.Mul(prev.T(), delta)
		w := layer.weights()
		gradW.Add(gradW, scaled(w, m.Alpha/b))

		_, cols := delta.Dims()
		gradB := make([]float64, cols)
		for j := 0; j < cols; j++ {
			gradB[j] = mat.Sum(delta.ColView(j))
		}

		if li > 0 {
			rowsPrev, _ := prev.Dims()
			next := mat.NewDense(rowsPrev, layer.In, nil)
			next.Mul(delta, w.T())
			m.derivative(next, prev)
			delta = next
		}

		m.update(layer.Weights, gradW.RawMatrix().Data, &states[2*li], lr)
		m.update(layer.Biases, gradB, &states[2*li+1], lr)
	}
	return loss
}

func scaled(a *mat.Dense, f float64) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}

func (m *MLP) update(params, grad []float64, st *optimizerState, lr float64) {
	if m.Solver == "sgd" {
		for i := range params {
			st.velocity[i] = m.Momentum*st.velocity[i] - lr*grad[i]
			params[i] += st.velocity[i]
		}
		return
	}

	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	st.step++
	t := float64(st.step)
	rate := lr * math.Sqrt(1-math.Pow(beta2, t)) / (1 - math.Pow(beta1, t))
	for i := range params {
		st.moment[i] = beta1*st.moment[i] + (1-beta1)*grad[i]
		st.velocity[i] = beta2*st.velocity[i] + (1-beta2)*grad[i]*grad[i]
		params[i] -= rate * st.moment[i] / (math.Sqrt(st.velocity[i]) + eps)
	}
}

func (m *MLP) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	if len(X) == 0 {
		return nil
	}
	acts := m.forward(toDense(toFloatMatrix(X)))
	out := acts[len(acts)-1]
	proba := make([][]decimal.Decimal, len(X))
	for i := range proba {
		proba[i] = toDecimalRow(out.RawRowView(i))
	}
	return proba
}

func (m *MLP) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(m.PredictProba(X), m.Classes)
}

func (m *MLP) Reset() {
	m.Layers = nil
	m.LossCurve = nil
	m.Classes = nil
}
