package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowforge/internal/errors"
	"flowforge/internal/table"
	"flowforge/internal/transform"
)

func gappyTable(t *testing.T) *table.Table {
	return mustTable(t, []table.Column{
		{Name: "n", Type: table.TypeFloat, Nullable: true},
		{Name: "s", Type: table.TypeString, Nullable: true},
	}, [][]any{
		{1.0, "a"},
		{nil, nil},
		{3.0, "a"},
		{nil, "b"},
	})
}

func TestMissingDropRow(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "n", "strategy": "drop_row"})
	require.NoError(t, err)

	assert.Equal(t, 2, out.RowCount())
	vals, _ := out.Values("n")
	assert.Equal(t, []any{1.0, 3.0}, vals)
}

func TestMissingDropRowCanEmptyTable(t *testing.T) {
	tbl := mustTable(t, []table.Column{{Name: "n", Type: table.TypeInt, Nullable: true}}, [][]any{{nil}, {nil}})

	out, _, err := apply(t, tbl, transform.KindMissing,
		map[string]any{"column": "n", "strategy": "drop_row"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.RowCount())
	assert.Equal(t, 1, out.ColumnCount())
}

func TestMissingFillMean(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_mean"})
	require.NoError(t, err)

	vals, _ := out.Values("n")
	assert.Equal(t, []any{1.0, 2.0, 3.0, 2.0}, vals)
}

func TestMissingFillMeanRoundsOnIntColumn(t *testing.T) {
	tbl := mustTable(t, []table.Column{{Name: "n", Type: table.TypeInt, Nullable: true}},
		[][]any{{int64(1)}, {int64(2)}, {nil}})

	out, _, err := apply(t, tbl, transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_mean"})
	require.NoError(t, err)

	vals, _ := out.Values("n")
	// mean 1.5 rounds to 2 so the declared int type holds
	assert.Equal(t, []any{int64(1), int64(2), int64(2)}, vals)
}

func TestMissingFillMedian(t *testing.T) {
	tbl := mustTable(t, []table.Column{{Name: "n", Type: table.TypeFloat, Nullable: true}},
		[][]any{{1.0}, {nil}, {2.0}, {100.0}})

	out, _, err := apply(t, tbl, transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_median"})
	require.NoError(t, err)

	vals, _ := out.Values("n")
	assert.Equal(t, 2.0, vals[1])
}

func TestMissingFillMeanNonNumericFails(t *testing.T) {
	_, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "s", "strategy": "fill_mean"})
	assert.Equal(t, errors.KindType, errors.KindOf(err))
}

func TestMissingFillConstant(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "s", "strategy": "fill_constant", "value": "missing"})
	require.NoError(t, err)

	vals, _ := out.Values("s")
	assert.Equal(t, []any{"a", "missing", "a", "b"}, vals)
}

func TestMissingFillConstantRequiresValue(t *testing.T) {
	_, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "s", "strategy": "fill_constant"})
	assert.Equal(t, errors.KindSchema, errors.KindOf(err))
}

func TestMissingFillConstantWrongType(t *testing.T) {
	_, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_constant", "value": "abc"})
	assert.Equal(t, errors.KindType, errors.KindOf(err))
}

func TestMissingFillMode(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "s", "strategy": "fill_mode"})
	require.NoError(t, err)

	vals, _ := out.Values("s")
	assert.Equal(t, []any{"a", "a", "a", "b"}, vals)
}

func TestMissingFillForward(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_forward"})
	require.NoError(t, err)

	vals, _ := out.Values("n")
	assert.Equal(t, []any{1.0, 1.0, 3.0, 3.0}, vals)
}

func TestMissingFillBackward(t *testing.T) {
	out, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "n", "strategy": "fill_backward"})
	require.NoError(t, err)

	vals, _ := out.Values("n")
	assert.Equal(t, []any{1.0, 3.0, 3.0, nil}, vals)
}

func TestMissingUnknownColumn(t *testing.T) {
	_, _, err := apply(t, gappyTable(t), transform.KindMissing,
		map[string]any{"column": "ghost", "strategy": "drop_row"})
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}
