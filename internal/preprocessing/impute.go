package preprocessing

import (
	"sort"

	"github.com/shopspring/decimal"
)

const unknownCategory = "unknown"

// median is the mean of the two middle values when the count is even.
func median(values []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

// mode picks the most frequent value; ties go to the smallest value.
func mode(values []string) string {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}
