package data

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Home Team,Away Team,Home_xG,Away_xG,MatchOutcome
Arsenal,Chelsea,1.8,0.9,H
Chelsea,Everton,,1.1,D
Everton,Arsenal,0.7,NA,A
`

func TestReadTableInfersKinds(t *testing.T) {
	table, err := ReadTable(strings.NewReader(sampleCSV), "sample")
	require.NoError(t, err)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"Home Team", "Away Team", "Home_xG", "Away_xG", "MatchOutcome"}, table.Header())

	home, ok := table.Column("Home Team")
	require.True(t, ok)
	assert.Equal(t, Categorical, home.Kind)

	xg, ok := table.Column("Home_xG")
	require.True(t, ok)
	assert.Equal(t, Numeric, xg.Kind)
	assert.True(t, xg.IsMissing(1))
	assert.True(t, xg.Numbers[0].Decimal.Equal(decimal.RequireFromString("1.8")))

	away, _ := table.Column("Away_xG")
	assert.Equal(t, 1, away.MissingCount())
}

func TestLoadTableErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTable(filepath.Join(dir, "absent.csv"))
	assert.True(t, errors.Is(err, ErrFileNotFound))

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadTable(empty)
	assert.True(t, errors.Is(err, ErrEmptyFile))

	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("a,b\n"), 0o644))
	table, err := LoadTable(headerOnly)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, 2, table.Width())

	ragged := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(ragged, []byte("a,b\n1,2\n3\n"), 0o644))
	_, err = LoadTable(ragged)
	assert.True(t, errors.Is(err, ErrRaggedRow))
}

func TestWriteTableRoundTrip(t *testing.T) {
	table, err := ReadTable(strings.NewReader(sampleCSV), "sample")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "cleaned.csv")
	require.NoError(t, WriteTable(path, table))

	back, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, table.Header(), back.Header())
	assert.Equal(t, table.Records(), back.Records())
}

func TestDuplicateNamesResolveToFirst(t *testing.T) {
	table, err := FromRecords([]string{"x", "x"}, [][]string{{"1", "2"}})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Index("x"))
	assert.Equal(t, -1, table.Index("y"))
}

func TestFeatureMatrix(t *testing.T) {
	table, err := NewTable(
		NewNumericColumn("f1", []decimal.NullDecimal{
			decimal.NewNullDecimal(decimal.NewFromInt(1)),
			decimal.NewNullDecimal(decimal.NewFromInt(2)),
		}),
		NewNumericColumn("target", []decimal.NullDecimal{
			decimal.NewNullDecimal(decimal.NewFromInt(2)),
			decimal.NewNullDecimal(decimal.NewFromInt(0)),
		}),
	)
	require.NoError(t, err)

	X, y, names, err := table.FeatureMatrix("target")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, y)
	assert.Equal(t, []string{"f1"}, names)
	assert.True(t, X[1][0].Equal(decimal.NewFromInt(2)))

	_, _, _, err = table.FeatureMatrix("nope")
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	require.NoError(t, table.Append(NewCategoricalColumn("team", []string{"a", "b"})))
	_, _, _, err = table.FeatureMatrix("target")
	assert.True(t, errors.Is(err, ErrNotNumeric))
}

func TestFeatureMatrixRejectsMissing(t *testing.T) {
	table, err := NewTable(
		NewNumericColumn("f1", []decimal.NullDecimal{{}, decimal.NewNullDecimal(decimal.NewFromInt(1))}),
		NewNumericColumn("target", []decimal.NullDecimal{
			decimal.NewNullDecimal(decimal.Zero),
			decimal.NewNullDecimal(decimal.NewFromInt(1)),
		}),
	)
	require.NoError(t, err)

	_, _, _, err = table.FeatureMatrix("target")
	assert.True(t, errors.Is(err, ErrMissingValue))
}

func TestValidator(t *testing.T) {
	v := NewDataValidator()
	X := [][]decimal.Decimal{
		{decimal.NewFromInt(1)}, {decimal.NewFromInt(3)}, {decimal.NewFromInt(5)}, {decimal.NewFromInt(7)},
	}
	y := []int{0, 1, 0, 1}

	require.NoError(t, v.ValidateDataset(X, y))
	assert.Error(t, v.ValidateDataset(X, y[:2]))
	assert.NoError(t, v.ValidateLabels(y, 2))
	assert.Error(t, v.ValidateLabels(y, 3))
	assert.Error(t, v.ValidateLabels([]int{1, 1}, 0))

	stats := v.GetDatasetStats(X, y, []string{"goals"})
	assert.Equal(t, 4, stats.Samples)
	assert.Equal(t, []ClassCount{{Class: 0, Count: 2}, {Class: 1, Count: 2}}, stats.Classes)
	assert.Equal(t, "goals", stats.Columns[0].Name)
	assert.True(t, stats.Columns[0].Mean.Equal(decimal.NewFromInt(4)))
	assert.True(t, stats.Columns[0].Max.Equal(decimal.NewFromInt(7)))
}
