package models

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

type KNN struct {
	BaseModel
	K        int
	Weights  string
	Distance string
	XTrain   [][]float64
	YTrain   []int
}

func NewKNN(k int, weights, distance string) *KNN {
	if k <= 0 {
		k = 5
	}
	if weights != "uniform" && weights != "distance" {
		weights = "uniform"
	}
	if distance != "euclidean" && distance != "manhattan" {
		distance = "euclidean"
	}

	return &KNN{
		K:        k,
		Weights:  weights,
		Distance: distance,
		BaseModel: BaseModel{
			Name:   "KNN",
			Family: FamilyKNN,
			Params: map[string]any{
				"n_neighbors": k,
				"weights":     weights,
				"metric":      distance,
			},
		},
	}
}

func newKNNFromParams(params map[string]any) (Model, error) {
	r := readParams(FamilyKNN, params)
	k := r.Int("n_neighbors", 5)
	weights := r.String("weights", "uniform", "uniform", "distance")
	metric := r.String("metric", "euclidean", "euclidean", "manhattan")
	r.AtLeast("n_neighbors", k, 1)
	if err := r.err(); err != nil {
		return nil, err
	}
	return NewKNN(k, weights, metric), nil
}

func (knn *KNN) Fit(X [][]decimal.Decimal, y []int) error {
	if err := checkFitInput(X, y); err != nil {
		return err
	}
	if knn.K > len(X) {
		return fmt.Errorf("n_neighbors %d exceeds %d training samples: %w", knn.K, len(X), ErrInvalidParam)
	}

	knn.XTrain = toFloatMatrix(X)
	knn.YTrain = append([]int(nil), y...)
	knn.Classes = ExtractClasses(y)
	return nil
}

func (knn *KNN) Predict(X [][]decimal.Decimal) []int {
	return predictFromProba(knn.PredictProba(X), knn.Classes)
}

func (knn *KNN) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))
	yIdx := classIndexes(knn.YTrain, knn.Classes)

	for i, sample := range X {
		neighbors := knn.findNeighbors(toFloatRow(sample))
		proba[i] = toDecimalRow(knn.vote(neighbors, yIdx))
	}

	return proba
}

type neighbor struct {
	index    int
	distance float64
}

func (knn *KNN) findNeighbors(sample []float64) []neighbor {
	neighbors := make([]neighbor, len(knn.XTrain))
	for i, trainSample := range knn.XTrain {
		neighbors[i] = neighbor{index: i, distance: knn.calculateDistance(sample, trainSample)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].distance < neighbors[j].distance
	})

	return neighbors[:min(knn.K, len(neighbors))]
}

func (knn *KNN) calculateDistance(a, b []float64) float64 {
	sum := 0.0
	if knn.Distance == "manhattan" {
		for i := range a {
			sum += math.Abs(a[i] - b[i])
		}
		return sum
	}
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// vote returns class weights normalized to sum to one. With distance
// weighting, exact matches take all the weight.
func (knn *KNN) vote(neighbors []neighbor, yIdx []int) []float64 {
	weights := make([]float64, len(knn.Classes))

	exact := false
	if knn.Weights == "distance" {
		for _, nb := range neighbors {
			if nb.distance == 0 {
				exact = true
				break
			}
		}
	}

	for _, nb := range neighbors {
		w := 1.0
		if knn.Weights == "distance" {
			switch {
			case exact && nb.distance == 0:
				w = 1
			case exact:
				w = 0
			default:
				w = 1 / nb.distance
			}
		}
		weights[yIdx[nb.index]] += w
	}

	normalize(weights)
	return weights
}

func (knn *KNN) Reset() {
	knn.XTrain = nil
	knn.YTrain = nil
	knn.Classes = nil
}
