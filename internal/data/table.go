package data

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrColumnNotFound = errors.New("column not found")
	ErrNotNumeric     = errors.New("column is not numeric")
	ErrMissingValue   = errors.New("missing value")
	ErrRaggedRow      = errors.New("row length does not match header")
)

type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column holds one named column. Numeric columns use Numbers, categorical
// columns use Strings where "" marks a missing cell.
type Column struct {
	Name    string
	Kind    Kind
	Numbers []decimal.NullDecimal
	Strings []string
}

func NewNumericColumn(name string, values []decimal.NullDecimal) *Column {
	return &Column{Name: name, Kind: Numeric, Numbers: values}
}

func NewCategoricalColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: Categorical, Strings: values}
}

func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Numbers)
	}
	return len(c.Strings)
}

func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return !c.Numbers[i].Valid
	}
	return c.Strings[i] == ""
}

func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Cell renders row i the way it is written to CSV.
func (c *Column) Cell(i int) string {
	if c.Kind == Numeric {
		if !c.Numbers[i].Valid {
			return ""
		}
		return c.Numbers[i].Decimal.String()
	}
	return c.Strings[i]
}

func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Numbers != nil {
		out.Numbers = append([]decimal.NullDecimal(nil), c.Numbers...)
	}
	if c.Strings != nil {
		out.Strings = append([]string(nil), c.Strings...)
	}
	return out
}

// Table is an ordered set of equal-length columns. Column names may repeat.
type Table struct {
	Columns []*Column
	rows    int
}

func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{}
	for _, c := range columns {
		if err := t.Append(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromRecords infers column kinds from raw cells: a column is numeric when
// every non-missing cell parses as a decimal.
func FromRecords(header []string, records [][]string) (*Table, error) {
	t := &Table{rows: len(records)}
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d: %w", i+1, len(rec), len(header), ErrRaggedRow)
		}
	}

	for j, name := range header {
		cells := make([]string, len(records))
		for i, rec := range records {
			cells[i] = normalizeCell(rec[j])
		}
		t.Columns = append(t.Columns, inferColumn(name, cells))
	}
	return t, nil
}

func inferColumn(name string, cells []string) *Column {
	numbers := make([]decimal.NullDecimal, len(cells))
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		d, err := decimal.NewFromString(cell)
		if err != nil {
			return NewCategoricalColumn(name, cells)
		}
		numbers[i] = decimal.NewNullDecimal(d)
	}
	return NewNumericColumn(name, numbers)
}

func (t *Table) Len() int   { return t.rows }
func (t *Table) Width() int { return len(t.Columns) }

func (t *Table) Header() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the first column called name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) Column(name string) (*Column, bool) {
	i := t.Index(name)
	if i < 0 {
		return nil, false
	}
	return t.Columns[i], true
}

func (t *Table) Append(c *Column) error {
	if len(t.Columns) == 0 {
		t.rows = c.Len()
	} else if c.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d: %w", c.Name, c.Len(), t.rows, ErrRaggedRow)
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Remove drops the column at position i.
func (t *Table) Remove(i int) {
	t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
}

func (t *Table) Clone() *Table {
	out := &Table{rows: t.rows, Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.Clone()
	}
	return out
}

func (t *Table) Records() [][]string {
	records := make([][]string, t.rows)
	for i := range records {
		rec := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			rec[j] = c.Cell(i)
		}
		records[i] = rec
	}
	return records
}

// FeatureMatrix splits a cleaned table into features and integer labels.
// Every column must be numeric and complete.
func (t *Table) FeatureMatrix(target string) ([][]decimal.Decimal, []int, []string, error) {
	targetIdx := t.Index(target)
	if targetIdx < 0 {
		return nil, nil, nil, fmt.Errorf("target %q: %w", target, ErrColumnNotFound)
	}

	var features []*Column
	var names []string
	for i, c := range t.Columns {
		if i == targetIdx {
			continue
		}
		if c.Kind != Numeric {
			return nil, nil, nil, fmt.Errorf("feature %q: %w", c.Name, ErrNotNumeric)
		}
		features = append(features, c)
		names = append(names, c.Name)
	}

	targetCol := t.Columns[targetIdx]
	if targetCol.Kind != Numeric {
		return nil, nil, nil, fmt.Errorf("target %q: %w", target, ErrNotNumeric)
	}

	X := make([][]decimal.Decimal, t.rows)
	y := make([]int, t.rows)
	for i := 0; i < t.rows; i++ {
		if !targetCol.Numbers[i].Valid {
			return nil, nil, nil, fmt.Errorf("target %q row %d: %w", target, i, ErrMissingValue)
		}
		y[i] = int(targetCol.Numbers[i].Decimal.IntPart())

		row := make([]decimal.Decimal, len(features))
		for j, c := range features {
			if !c.Numbers[i].Valid {
				return nil, nil, nil, fmt.Errorf("feature %q row %d: %w", c.Name, i, ErrMissingValue)
			}
			row[j] = c.Numbers[i].Decimal
		}
		X[i] = row
	}
	return X, y, names, nil
}
