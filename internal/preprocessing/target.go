package preprocessing

import (
	"fmt"
	"sort"
)

// Unmapped is a target cell outside the mapping.
type Unmapped struct {
	Row   int
	Value string
}

// TargetEncoder maps outcome labels through a fixed dictionary.
type TargetEncoder struct {
	mapping map[string]int
	inverse map[int]string
}

func NewTargetEncoder(mapping map[string]int) (*TargetEncoder, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("target mapping is empty")
	}
	te := &TargetEncoder{
		mapping: make(map[string]int, len(mapping)),
		inverse: make(map[int]string, len(mapping)),
	}
	for label, code := range mapping {
		if prev, ok := te.inverse[code]; ok {
			return nil, fmt.Errorf("labels %q and %q share code %d", prev, label, code)
		}
		te.mapping[label] = code
		te.inverse[code] = label
	}
	return te, nil
}

// Encode returns one code per value; ok[i] is false for unmapped values.
func (te *TargetEncoder) Encode(values []string) (codes []int, ok []bool, unmapped []Unmapped) {
	codes = make([]int, len(values))
	ok = make([]bool, len(values))
	for i, v := range values {
		code, found := te.mapping[v]
		if !found {
			unmapped = append(unmapped, Unmapped{Row: i, Value: v})
			continue
		}
		codes[i] = code
		ok[i] = true
	}
	return codes, ok, unmapped
}

func (te *TargetEncoder) Decode(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, code := range codes {
		label, ok := te.inverse[code]
		if !ok {
			return nil, fmt.Errorf("unknown target code: %d", code)
		}
		out[i] = label
	}
	return out, nil
}

func (te *TargetEncoder) HasCode(code int) bool {
	_, ok := te.inverse[code]
	return ok
}

// Labels returns the mapped labels ordered by code.
func (te *TargetEncoder) Labels() []string {
	codes := te.Codes()
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = te.inverse[c]
	}
	return out
}

func (te *TargetEncoder) Codes() []int {
	codes := make([]int, 0, len(te.inverse))
	for c := range te.inverse {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}
