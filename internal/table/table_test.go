package table_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowforge/internal/errors"
	"flowforge/internal/table"
)

func testColumns() []table.Column {
	return []table.Column{
		{Name: "name", Type: table.TypeString},
		{Name: "age", Type: table.TypeInt},
	}
}

func testRows() [][]any {
	return [][]any{
		{"Jon", int64(30)},
		{"Jane", int64(25)},
	}
}

func TestLoad(t *testing.T) {
	tbl, err := table.Load(testColumns(), testRows())
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.RowCount())
	assert.Equal(t, 2, tbl.ColumnCount())
	assert.Equal(t, []string{"name", "age"}, tbl.ColumnNames())
}

func TestLoadCoercesStrings(t *testing.T) {
	cols := []table.Column{{Name: "n", Type: table.TypeInt}}
	tbl, err := table.Load(cols, [][]any{{"42"}, {float64(7)}})
	require.NoError(t, err)

	vals, err := tbl.Values("n")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(42), int64(7)}, vals)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		cols []table.Column
		rows [][]any
		kind errors.Kind
	}{
		{
			name: "duplicate column names",
			cols: []table.Column{{Name: "a", Type: table.TypeString}, {Name: "a", Type: table.TypeInt}},
			kind: errors.KindSchema,
		},
		{
			name: "arity mismatch",
			cols: testColumns(),
			rows: [][]any{{"Jon"}},
			kind: errors.KindSchema,
		},
		{
			name: "unknown type",
			cols: []table.Column{{Name: "a", Type: table.Type("blob")}},
			kind: errors.KindSchema,
		},
		{
			name: "uncoercible value",
			cols: []table.Column{{Name: "n", Type: table.TypeInt}},
			rows: [][]any{{"abc"}},
			kind: errors.KindType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Load(tt.cols, tt.rows)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
		})
	}
}

func TestLoadMarksNullableOnNulls(t *testing.T) {
	cols := []table.Column{{Name: "a", Type: table.TypeString, Nullable: false}}
	tbl, err := table.Load(cols, [][]any{{"x"}, {nil}})
	require.NoError(t, err)

	col, err := tbl.Column("a")
	require.NoError(t, err)
	assert.True(t, col.Nullable)
}

func TestColumnNotFound(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())
	_, err := tbl.Column("missing")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestWithColumnReplacedDoesNotMutateOriginal(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithColumnReplaced("age", []any{int64(31), int64(26)})
	require.NoError(t, err)

	orig, _ := tbl.Values("age")
	repl, _ := out.Values("age")
	assert.Equal(t, []any{int64(30), int64(25)}, orig)
	assert.Equal(t, []any{int64(31), int64(26)}, repl)
	assert.False(t, tbl.Equal(out))
}

func TestWithColumnReplacedTypeMismatch(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())
	_, err := tbl.WithColumnReplaced("age", []any{"thirty", int64(26)})
	assert.Equal(t, errors.KindType, errors.KindOf(err))
}

func TestWithColumnCastRetypes(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithColumnCast("age", []any{"30", nil}, table.TypeString)
	require.NoError(t, err)

	col, _ := out.Column("age")
	assert.Equal(t, table.TypeString, col.Type)
	assert.True(t, col.Nullable)
}

func TestWithColumnRenamed(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithColumnRenamed("name", "full_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"full_name", "age"}, out.ColumnNames())
	assert.Equal(t, []string{"name", "age"}, tbl.ColumnNames())

	_, err = tbl.WithColumnRenamed("name", "age")
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))

	_, err = tbl.WithColumnRenamed("ghost", "x")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestWithoutColumn(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithoutColumn("age")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, out.ColumnNames())

	_, err = out.WithoutColumn("name")
	assert.Equal(t, errors.KindSchema, errors.KindOf(err))
}

func TestWithColumnOrder(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithColumnOrder([]string{"age", "name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name"}, out.ColumnNames())
	assert.Equal(t, []any{int64(30), "Jon"}, out.Row(0))

	_, err = tbl.WithColumnOrder([]string{"age", "age"})
	assert.Equal(t, errors.KindSchema, errors.KindOf(err))

	_, err = tbl.WithColumnOrder([]string{"age"})
	assert.Equal(t, errors.KindSchema, errors.KindOf(err))
}

func TestWithColumnAppended(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.WithColumnAppended(table.Column{Name: "score", Type: table.TypeFloat}, []any{1.5, nil})
	require.NoError(t, err)
	col, _ := out.Column("score")
	assert.True(t, col.Nullable)

	_, err = tbl.WithColumnAppended(table.Column{Name: "age", Type: table.TypeInt}, []any{int64(1), int64(2)})
	assert.Equal(t, errors.KindConflict, errors.KindOf(err))
}

func TestSelectRows(t *testing.T) {
	tbl, _ := table.Load(testColumns(), testRows())

	out, err := tbl.SelectRows([]int{1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.RowCount())
	assert.Equal(t, []any{"Jane", int64(25)}, out.Row(0))

	empty, err := tbl.SelectRows(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.RowCount())
	assert.Equal(t, 2, empty.ColumnCount())

	_, err = tbl.SelectRows([]int{5})
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestCoerceDatetime(t *testing.T) {
	v, err := table.Coerce("2024-03-01", table.TypeDatetime)
	require.NoError(t, err)
	ts, ok := v.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	_, err = table.Coerce("not a date", table.TypeDatetime)
	assert.Error(t, err)
}

func TestCoerceIntRejectsFractional(t *testing.T) {
	_, err := table.Coerce(1.5, table.TypeInt)
	assert.Error(t, err)

	v, err := table.Coerce(2.0, table.TypeInt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestEqual(t *testing.T) {
	a, _ := table.Load(testColumns(), testRows())
	b, _ := table.Load(testColumns(), testRows())
	assert.True(t, a.Equal(b))

	c, _ := a.WithColumnRenamed("name", "n")
	assert.False(t, a.Equal(c))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", table.FormatValue(nil))
	assert.Equal(t, "42", table.FormatValue(int64(42)))
	assert.Equal(t, "1.5", table.FormatValue(1.5))
	assert.Equal(t, "true", table.FormatValue(true))
}
