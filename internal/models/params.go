package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// paramReader reads typed hyperparameters from a loosely typed map, as
// produced by grids and YAML files. A nil value selects the default.
// Keys that are never read are reported by err.
type paramReader struct {
	family string
	params map[string]any
	used   map[string]bool
	errs   []error
}

func readParams(family string, params map[string]any) *paramReader {
	return &paramReader{family: family, params: params, used: make(map[string]bool)}
}

func (r *paramReader) lookup(key string) (any, bool) {
	r.used[key] = true
	v, ok := r.params[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r *paramReader) fail(key string, v any, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s: %s=%v (%T), want %s: %w", r.family, key, v, v, want, ErrInvalidParam))
}

func (r *paramReader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	if n, ok := asInt(v); ok {
		return n
	}
	r.fail(key, v, "integer")
	return def
}

func (r *paramReader) Float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	if f, ok := asFloat(v); ok {
		return f
	}
	r.fail(key, v, "number")
	return def
}

func (r *paramReader) Bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	r.fail(key, v, "bool")
	return def
}

func (r *paramReader) String(key, def string, allowed ...string) string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	s, isString := v.(string)
	if !isString {
		r.fail(key, v, "one of "+strings.Join(allowed, "|"))
		return def
	}
	if len(allowed) > 0 && !contains(allowed, s) {
		r.fail(key, v, "one of "+strings.Join(allowed, "|"))
		return def
	}
	return s
}

// IntSlice accepts a single integer, a list of integers or "100,50".
func (r *paramReader) IntSlice(key string, def []int) []int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case []int:
		return append([]int(nil), t...)
	case []any:
		out := make([]int, 0, len(t))
		for _, e := range t {
			n, ok := asInt(e)
			if !ok {
				r.fail(key, v, "list of integers")
				return def
			}
			out = append(out, n)
		}
		return out
	case string:
		var out []int
		for _, part := range strings.Split(t, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				r.fail(key, v, "list of integers")
				return def
			}
			out = append(out, n)
		}
		return out
	}
	if n, ok := asInt(v); ok {
		return []int{n}
	}
	r.fail(key, v, "list of integers")
	return def
}

// FloatOrChoice returns either a positive float or one of the named choices.
func (r *paramReader) FloatOrChoice(key string, def any, choices ...string) any {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	if s, isString := v.(string); isString {
		if contains(choices, s) {
			return s
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			return f
		}
	} else if f, ok := asFloat(v); ok && f > 0 {
		return f
	}
	r.fail(key, v, "positive number or one of "+strings.Join(choices, "|"))
	return def
}

// Positive records an error when value is not > 0.
func (r *paramReader) Positive(key string, value float64) {
	if !(value > 0) {
		r.errs = append(r.errs, fmt.Errorf("%s: %s must be positive, got %v: %w", r.family, key, value, ErrInvalidParam))
	}
}

// Fraction records an error when value is outside (0, 1].
func (r *paramReader) Fraction(key string, value float64) {
	if !(value > 0 && value <= 1) {
		r.errs = append(r.errs, fmt.Errorf("%s: %s must be in (0, 1], got %v: %w", r.family, key, value, ErrInvalidParam))
	}
}

func (r *paramReader) AtLeast(key string, value, limit int) {
	if value < limit {
		r.errs = append(r.errs, fmt.Errorf("%s: %s must be at least %d, got %d: %w", r.family, key, limit, value, ErrInvalidParam))
	}
}

func (r *paramReader) err() error {
	var unknown []string
	for k := range r.params {
		if !r.used[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		r.errs = append(r.errs, fmt.Errorf("%s: unknown parameter %q: %w", r.family, k, ErrInvalidParam))
	}
	return errors.Join(r.errs...)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FormatParam renders a parameter value for CSV output. A nil value, which
// selects the estimator default, renders empty.
func FormatParam(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []int:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = strconv.Itoa(n)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = FormatParam(e)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
