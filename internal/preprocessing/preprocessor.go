package preprocessing

import (
	"context"
	"errors"
	"fmt"

	"matchpredict/internal/config"
	"matchpredict/internal/data"
	"matchpredict/pkg/logger"

	"github.com/shopspring/decimal"
)

var ErrTargetColumnMissing = errors.New("target column missing")

type Options struct {
	TargetColumn  string
	TargetMapping map[string]int
	DropColumns   []string
	EncodeColumns []string
	ScaleExclude  []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetColumn:  cfg.TargetColumn,
		TargetMapping: cfg.TargetMapping,
		DropColumns:   cfg.DropColumns,
		EncodeColumns: cfg.EncodeColumns,
		ScaleExclude:  cfg.ScaleExclude,
	}
}

type Imputation struct {
	Column string
	Count  int
	Fill   string
}

// Report describes what Process changed.
type Report struct {
	DuplicateColumns []string
	DroppedColumns   []string
	Imputed          []Imputation
	ScaledColumns    []string
	Encodings        map[string]map[string]int
	UnmappedTargets  []Unmapped
	Warnings         []string
}

type Preprocessor struct {
	opts   Options
	target *TargetEncoder
	logger logger.Logger
}

func NewPreprocessor(opts Options, log logger.Logger) (*Preprocessor, error) {
	if opts.TargetColumn == "" {
		return nil, fmt.Errorf("target column name is empty")
	}
	te, err := NewTargetEncoder(opts.TargetMapping)
	if err != nil {
		return nil, fmt.Errorf("invalid target mapping: %w", err)
	}
	return &Preprocessor{opts: opts, target: te, logger: log.Named("preprocessor")}, nil
}

func (p *Preprocessor) TargetEncoder() *TargetEncoder {
	return p.target
}

// Process returns a cleaned copy of t. The input table is not modified.
func (p *Preprocessor) Process(ctx context.Context, t *data.Table) (*data.Table, *Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	out := t.Clone()
	rep := &Report{Encodings: make(map[string]map[string]int)}

	p.dedupe(out, rep)
	if out.Index(p.opts.TargetColumn) < 0 {
		return nil, nil, fmt.Errorf("%q: %w", p.opts.TargetColumn, ErrTargetColumnMissing)
	}

	p.drop(ctx, out, rep)
	p.impute(ctx, out, rep)
	if err := p.scale(out, rep); err != nil {
		return nil, nil, fmt.Errorf("scale: %w", err)
	}
	if err := p.encode(ctx, out, rep); err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	p.mapTarget(ctx, out, rep)

	p.logger.Info(ctx, "preprocessing complete",
		logger.Int("rows", out.Len()),
		logger.Int("columns", out.Width()),
		logger.Int("warnings", len(rep.Warnings)),
	)
	return out, rep, nil
}

func (p *Preprocessor) warn(ctx context.Context, rep *Report, msg string, fields ...logger.Field) {
	rep.Warnings = append(rep.Warnings, msg)
	p.logger.Warn(ctx, msg, fields...)
}

func (p *Preprocessor) dedupe(t *data.Table, rep *Report) {
	seen := make(map[string]bool)
	for i := 0; i < len(t.Columns); {
		name := t.Columns[i].Name
		if seen[name] {
			rep.DuplicateColumns = append(rep.DuplicateColumns, name)
			t.Remove(i)
			continue
		}
		seen[name] = true
		i++
	}
}

func (p *Preprocessor) drop(ctx context.Context, t *data.Table, rep *Report) {
	for _, name := range p.opts.DropColumns {
		if name == p.opts.TargetColumn {
			p.warn(ctx, rep, fmt.Sprintf("refusing to drop target column %q", name))
			continue
		}
		idx := t.Index(name)
		if idx < 0 {
			p.warn(ctx, rep, fmt.Sprintf("drop column %q not found", name), logger.String("column", name))
			continue
		}
		t.Remove(idx)
		rep.DroppedColumns = append(rep.DroppedColumns, name)
	}
}

func (p *Preprocessor) impute(ctx context.Context, t *data.Table, rep *Report) {
	for _, c := range t.Columns {
		missing := c.MissingCount()
		if missing == 0 {
			continue
		}

		var fill string
		switch {
		case c.Name == p.opts.TargetColumn && c.Kind == data.Numeric:
			// class codes take the mode, a median could fall between codes
			var present []string
			for i := range c.Numbers {
				if c.Numbers[i].Valid {
					present = append(present, c.Numbers[i].Decimal.String())
				}
			}
			if len(present) == 0 {
				p.warn(ctx, rep, fmt.Sprintf("target column %q has no values", c.Name), logger.String("column", c.Name))
				continue
			}
			value := decimal.RequireFromString(mode(present))
			for i := range c.Numbers {
				if !c.Numbers[i].Valid {
					c.Numbers[i] = decimal.NewNullDecimal(value)
				}
			}
			fill = value.String()
		case c.Kind == data.Numeric:
			var present []decimal.Decimal
			for _, v := range c.Numbers {
				if v.Valid {
					present = append(present, v.Decimal)
				}
			}
			value := decimal.Zero
			if len(present) == 0 {
				p.warn(ctx, rep, fmt.Sprintf("column %q has no values, filling with 0", c.Name), logger.String("column", c.Name))
			} else {
				value = median(present)
			}
			for i := range c.Numbers {
				if !c.Numbers[i].Valid {
					c.Numbers[i] = decimal.NewNullDecimal(value)
				}
			}
			fill = value.String()
		default:
			var present []string
			for _, v := range c.Strings {
				if v != "" {
					present = append(present, v)
				}
			}
			value := unknownCategory
			if len(present) == 0 {
				p.warn(ctx, rep, fmt.Sprintf("column %q has no values, filling with %q", c.Name, unknownCategory), logger.String("column", c.Name))
			} else {
				value = mode(present)
			}
			for i := range c.Strings {
				if c.Strings[i] == "" {
					c.Strings[i] = value
				}
			}
			fill = value
		}

		rep.Imputed = append(rep.Imputed, Imputation{Column: c.Name, Count: missing, Fill: fill})
		p.logger.Debug(ctx, "imputed column", logger.String("column", c.Name), logger.Int("missing", missing), logger.String("fill", fill))
	}
}

func (p *Preprocessor) scale(t *data.Table, rep *Report) error {
	exclude := make(map[string]bool, len(p.opts.ScaleExclude)+1)
	exclude[p.opts.TargetColumn] = true
	for _, name := range p.opts.ScaleExclude {
		exclude[name] = true
	}

	var cols []*data.Column
	for _, c := range t.Columns {
		if c.Kind == data.Numeric && !exclude[c.Name] {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 || t.Len() == 0 {
		return nil
	}

	X := make([][]decimal.Decimal, t.Len())
	for i := range X {
		row := make([]decimal.Decimal, len(cols))
		for j, c := range cols {
			row[j] = c.Numbers[i].Decimal
		}
		X[i] = row
	}

	scaled, err := NewScaler().FitTransform(X)
	if err != nil {
		return err
	}
	for j, c := range cols {
		for i := range scaled {
			c.Numbers[i] = decimal.NewNullDecimal(scaled[i][j])
		}
		rep.ScaledColumns = append(rep.ScaledColumns, c.Name)
	}
	return nil
}

func (p *Preprocessor) encode(ctx context.Context, t *data.Table, rep *Report) error {
	for _, name := range p.opts.EncodeColumns {
		idx := t.Index(name)
		if idx < 0 {
			p.warn(ctx, rep, fmt.Sprintf("encode column %q not found", name), logger.String("column", name))
			continue
		}
		c := t.Columns[idx]
		if c.Kind != data.Categorical {
			p.warn(ctx, rep, fmt.Sprintf("encode column %q is already numeric", name), logger.String("column", name))
			continue
		}

		le := NewLabelEncoder()
		codes, err := le.FitTransform(c.Strings)
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}

		numbers := make([]decimal.NullDecimal, len(codes))
		for i, code := range codes {
			numbers[i] = decimal.NewNullDecimal(decimal.NewFromInt(int64(code)))
		}
		t.Columns[idx] = data.NewNumericColumn(name, numbers)

		classes := le.Classes()
		dict := make(map[string]int, len(classes))
		for code, value := range classes {
			dict[value] = code
		}
		rep.Encodings[name] = dict
		p.logger.Debug(ctx, "encoded column", logger.String("column", name), logger.Strings("classes", classes))
	}
	return nil
}

func (p *Preprocessor) mapTarget(ctx context.Context, t *data.Table, rep *Report) {
	idx := t.Index(p.opts.TargetColumn)
	c := t.Columns[idx]

	if c.Kind == data.Numeric && p.alreadyEncoded(c) {
		return
	}

	raw := make([]string, c.Len())
	for i := range raw {
		raw[i] = c.Cell(i)
	}
	codes, ok, unmapped := p.target.Encode(raw)

	numbers := make([]decimal.NullDecimal, len(codes))
	for i, code := range codes {
		if ok[i] {
			numbers[i] = decimal.NewNullDecimal(decimal.NewFromInt(int64(code)))
		}
	}
	t.Columns[idx] = data.NewNumericColumn(c.Name, numbers)

	rep.UnmappedTargets = unmapped
	if len(unmapped) > 0 {
		p.warn(ctx, rep, fmt.Sprintf("%d target values are not in the mapping", len(unmapped)),
			logger.String("column", c.Name), logger.Int("count", len(unmapped)))
	}
}

// alreadyEncoded reports whether every value is an integer code of the
// mapping, as in a table that was cleaned before.
func (p *Preprocessor) alreadyEncoded(c *data.Column) bool {
	for _, v := range c.Numbers {
		if !v.Valid || !v.Decimal.IsInteger() || !p.target.HasCode(int(v.Decimal.IntPart())) {
			return false
		}
	}
	return true
}
