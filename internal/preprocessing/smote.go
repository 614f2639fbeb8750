package preprocessing

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

// Balancer oversamples minority classes with SMOTE-style interpolation.
type Balancer struct {
	Ratio     float64
	Neighbors int
	Seed      int64
}

func NewBalancer(ratio float64, neighbors int, seed int64) *Balancer {
	return &Balancer{Ratio: ratio, Neighbors: neighbors, Seed: seed}
}

// Imbalance returns min class count / max class count.
func Imbalance(y []int) float64 {
	counts := countClasses(y)
	if len(counts) == 0 {
		return 1
	}
	lo, hi := math.MaxInt, 0
	for _, c := range counts {
		lo = min(lo, c)
		hi = max(hi, c)
	}
	return float64(lo) / float64(hi)
}

// Resample tops every class up to the majority count when the imbalance is
// below Ratio. It returns the input unchanged otherwise.
func (b *Balancer) Resample(X [][]decimal.Decimal, y []int) ([][]decimal.Decimal, []int, bool, error) {
	if len(X) != len(y) {
		return nil, nil, false, fmt.Errorf("feature matrix and labels have different lengths: %d vs %d", len(X), len(y))
	}
	if len(X) == 0 || Imbalance(y) >= b.Ratio {
		return X, y, false, nil
	}

	counts := countClasses(y)
	classes := make([]int, 0, len(counts))
	majority := 0
	for c, n := range counts {
		classes = append(classes, c)
		majority = max(majority, n)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(b.Seed))
	outX := append([][]decimal.Decimal(nil), X...)
	outY := append([]int(nil), y...)

	for _, class := range classes {
		deficit := majority - counts[class]
		if deficit == 0 {
			continue
		}

		var members [][]float64
		for i, label := range y {
			if label == class {
				members = append(members, toFloats(X[i]))
			}
		}
		neighbors := nearestNeighbors(members, b.Neighbors)

		for s := 0; s < deficit; s++ {
			base := rng.Intn(len(members))
			sample := members[base]
			if len(neighbors[base]) > 0 {
				other := members[neighbors[base][rng.Intn(len(neighbors[base]))]]
				gap := rng.Float64()
				synthetic := make([]float64, len(sample))
				for j := range sample {
					synthetic[j] = sample[j] + gap*(other[j]-sample[j])
				}
				sample = synthetic
			}
			outX = append(outX, fromFloats(sample))
			outY = append(outY, class)
		}
	}
	return outX, outY, true, nil
}

func countClasses(y []int) map[int]int {
	counts := make(map[int]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}

// nearestNeighbors returns, for every point, the indexes of its k closest
// other points by euclidean distance.
func nearestNeighbors(points [][]float64, k int) [][]int {
	k = min(k, len(points)-1)
	out := make([][]int, len(points))
	if k <= 0 {
		return out
	}

	type candidate struct {
		idx  int
		dist float64
	}
	for i, p := range points {
		cands := make([]candidate, 0, len(points)-1)
		for j, q := range points {
			if i == j {
				continue
			}
			d := 0.0
			for f := range p {
				diff := p[f] - q[f]
				d += diff * diff
			}
			cands = append(cands, candidate{idx: j, dist: d})
		}
		sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
		idx := make([]int, k)
		for n := 0; n < k; n++ {
			idx[n] = cands[n].idx
		}
		out[i] = idx
	}
	return out
}

func toFloats(row []decimal.Decimal) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = v.InexactFloat64()
	}
	return out
}

func fromFloats(row []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(row))
	for i, v := range row {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}
