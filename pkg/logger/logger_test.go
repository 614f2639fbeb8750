package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn")
	require.NoError(t, err)

	ctx := context.Background()
	l.Info(ctx, "hidden")
	l.Warn(ctx, "column missing", String("column", "Season"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "column missing")
	assert.Contains(t, out, "column=Season")
}

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info")
	require.NoError(t, err)

	l.Named("evaluator").Error(context.Background(), "failed", Error(errors.New("boom")))
	assert.Contains(t, buf.String(), "component=evaluator")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestNestedNamesJoin(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info")
	require.NoError(t, err)

	l.Named("pipeline").Named("preprocessor").Info(context.Background(), "cleaned")
	out := buf.String()
	assert.Contains(t, out, "component=pipeline.preprocessor")
	assert.Equal(t, 1, strings.Count(out, "component="))
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "", "warning", "error"} {
		_, err := ParseLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "nothing")
	assert.NotNil(t, l.Named("x"))
}
