// Package table implements the in-memory tabular store underlying the
// transformation pipeline. Tables are immutable value snapshots: every
// write-shaped method returns a new Table and leaves the receiver
// untouched, so the pipeline history can retain prior snapshots by
// reference.
package table

import (
	"flowforge/internal/errors"
)

// Type enumerates the declared column types.
type Type string

const (
	TypeString      Type = "string"
	TypeInt         Type = "int"
	TypeFloat       Type = "float"
	TypeBool        Type = "bool"
	TypeDatetime    Type = "datetime"
	TypeCategorical Type = "categorical"
)

// Valid reports whether t is a known column type.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDatetime, TypeCategorical:
		return true
	}
	return false
}

// Numeric reports whether values of this type support arithmetic.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Textual reports whether values of this type are stored as strings.
func (t Type) Textual() bool {
	return t == TypeString || t == TypeCategorical
}

// Column describes one column of a Table.
type Column struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table is an immutable tabular snapshot. Values are stored column-major;
// a nil cell is an explicit null. Non-null cells hold the canonical Go
// representation of the column's declared type: string, int64, float64,
// bool or time.Time.
type Table struct {
	cols   []Column
	data   [][]any // data[i] holds the values of cols[i], length == rows
	rows   int
	byName map[string]int
}

// Load builds a Table from column definitions and row-major values. It
// fails with a schema error when column names are not unique or a row's
// arity mismatches the column count, and with a type error when a value
// cannot be coerced to its column's declared type. Columns containing a
// null are marked nullable regardless of the declaration.
func Load(cols []Column, rows [][]any) (*Table, error) {
	if len(cols) == 0 {
		return nil, errors.NewSchemaError("table requires at least one column").WithParameter("columns")
	}
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, errors.NewSchemaError("column %d has an empty name", i).WithParameter("columns")
		}
		if !c.Type.Valid() {
			return nil, errors.NewSchemaError("column %q has unknown type %q", c.Name, c.Type).WithParameter("columns")
		}
		if _, dup := byName[c.Name]; dup {
			return nil, errors.NewSchemaError("duplicate column name %q", c.Name).WithParameter("columns")
		}
		byName[c.Name] = i
	}

	outCols := make([]Column, len(cols))
	copy(outCols, cols)
	data := make([][]any, len(cols))
	for i := range data {
		data[i] = make([]any, len(rows))
	}

	for r, row := range rows {
		if len(row) != len(cols) {
			return nil, errors.NewSchemaError("row %d has %d values, expected %d", r, len(row), len(cols)).WithParameter("rows")
		}
		for c, v := range row {
			if v == nil {
				outCols[c].Nullable = true
				continue
			}
			coerced, err := Coerce(v, cols[c].Type)
			if err != nil {
				return nil, errors.NewTypeError("row %d, column %q: %s", r, cols[c].Name, err.Error()).WithParameter("rows")
			}
			data[c][r] = coerced
		}
	}

	return &Table{cols: outCols, data: data, rows: len(rows), byName: byName}, nil
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return t.rows }

// ColumnCount returns the number of columns.
func (t *Table) ColumnCount() int { return len(t.cols) }

// Columns returns a copy of the column definitions in order.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the definition of the named column.
func (t *Table) Column(name string) (Column, error) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, errors.NewNotFoundError("column %q does not exist", name).WithParameter("column")
	}
	return t.cols[i], nil
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Values returns the stored values of the named column. The returned
// slice is shared with the snapshot and must not be modified.
func (t *Table) Values(name string) ([]any, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, errors.NewNotFoundError("column %q does not exist", name).WithParameter("column")
	}
	return t.data[i], nil
}

// Row materializes row i as a value-per-column slice.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.cols))
	for c := range t.cols {
		row[c] = t.data[c][i]
	}
	return row
}

// Rows materializes the full table in row-major order, as handed to
// export adapters and the UI.
func (t *Table) Rows() [][]any {
	rows := make([][]any, t.rows)
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// clone copies the column metadata and the column-major slice headers.
// Value slices are shared until a caller replaces one; snapshots are
// immutable so sharing is safe.
func (t *Table) clone() *Table {
	cols := make([]Column, len(t.cols))
	copy(cols, t.cols)
	data := make([][]any, len(t.data))
	copy(data, t.data)
	byName := make(map[string]int, len(t.byName))
	for k, v := range t.byName {
		byName[k] = v
	}
	return &Table{cols: cols, data: data, rows: t.rows, byName: byName}
}

// WithColumnReplaced returns a new Table with the named column's values
// replaced. Values are coerced to the column's declared type; a value
// that cannot be coerced fails with a type error and any null marks the
// column nullable.
func (t *Table) WithColumnReplaced(name string, values []any) (*Table, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	return t.WithColumnCast(name, values, c.Type)
}

// WithColumnCast returns a new Table with the named column's values
// replaced and its declared type changed atomically. The nullable flag
// is recomputed from the new values.
func (t *Table) WithColumnCast(name string, values []any, newType Type) (*Table, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, errors.NewNotFoundError("column %q does not exist", name).WithParameter("column")
	}
	if !newType.Valid() {
		return nil, errors.NewSchemaError("unknown type %q", newType).WithParameter("target_type")
	}
	if len(values) != t.rows {
		return nil, errors.NewSchemaError("column %q replacement has %d values, expected %d", name, len(values), t.rows)
	}

	coerced := make([]any, len(values))
	nullable := false
	for r, v := range values {
		if v == nil {
			nullable = true
			continue
		}
		cv, err := Coerce(v, newType)
		if err != nil {
			return nil, errors.NewTypeError("row %d, column %q: %s", r, name, err.Error())
		}
		coerced[r] = cv
	}

	out := t.clone()
	out.cols[i].Type = newType
	out.cols[i].Nullable = nullable
	out.data[i] = coerced
	return out, nil
}

// WithColumnRenamed returns a new Table with one column renamed. It
// fails with a conflict error when the target name is already taken.
func (t *Table) WithColumnRenamed(oldName, newName string) (*Table, error) {
	i, ok := t.byName[oldName]
	if !ok {
		return nil, errors.NewNotFoundError("column %q does not exist", oldName).WithParameter("column")
	}
	if newName == "" {
		return nil, errors.NewSchemaError("column name cannot be empty").WithParameter("new_name")
	}
	if newName == oldName {
		return t, nil
	}
	if _, taken := t.byName[newName]; taken {
		return nil, errors.NewConflictError("column %q already exists", newName).WithParameter("new_name")
	}
	out := t.clone()
	out.cols[i].Name = newName
	delete(out.byName, oldName)
	out.byName[newName] = i
	return out, nil
}

// WithoutColumn returns a new Table with the named column removed.
func (t *Table) WithoutColumn(name string) (*Table, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, errors.NewNotFoundError("column %q does not exist", name).WithParameter("column")
	}
	if len(t.cols) == 1 {
		return nil, errors.NewSchemaError("cannot drop the last remaining column").WithParameter("column")
	}
	cols := make([]Column, 0, len(t.cols)-1)
	data := make([][]any, 0, len(t.data)-1)
	for j := range t.cols {
		if j == i {
			continue
		}
		cols = append(cols, t.cols[j])
		data = append(data, t.data[j])
	}
	return newFromColumns(cols, data, t.rows), nil
}

// WithColumnOrder returns a new Table with columns reordered. The order
// must be a permutation of the existing names.
func (t *Table) WithColumnOrder(order []string) (*Table, error) {
	if len(order) != len(t.cols) {
		return nil, errors.NewSchemaError("order lists %d columns, table has %d", len(order), len(t.cols)).WithParameter("order")
	}
	seen := make(map[string]bool, len(order))
	cols := make([]Column, 0, len(order))
	data := make([][]any, 0, len(order))
	for _, name := range order {
		i, ok := t.byName[name]
		if !ok {
			return nil, errors.NewSchemaError("order references unknown column %q", name).WithParameter("order")
		}
		if seen[name] {
			return nil, errors.NewSchemaError("order repeats column %q", name).WithParameter("order")
		}
		seen[name] = true
		cols = append(cols, t.cols[i])
		data = append(data, t.data[i])
	}
	return newFromColumns(cols, data, t.rows), nil
}

// WithColumnAppended returns a new Table with an additional column. It
// fails with a conflict error when the name is already taken.
func (t *Table) WithColumnAppended(col Column, values []any) (*Table, error) {
	if col.Name == "" {
		return nil, errors.NewSchemaError("column name cannot be empty").WithParameter("new_column_name")
	}
	if !col.Type.Valid() {
		return nil, errors.NewSchemaError("unknown type %q", col.Type).WithParameter("new_column_name")
	}
	if _, taken := t.byName[col.Name]; taken {
		return nil, errors.NewConflictError("column %q already exists", col.Name).WithParameter("new_column_name")
	}
	if len(values) != t.rows {
		return nil, errors.NewSchemaError("column %q has %d values, expected %d", col.Name, len(values), t.rows)
	}

	coerced := make([]any, len(values))
	nullable := false
	for r, v := range values {
		if v == nil {
			nullable = true
			continue
		}
		cv, err := Coerce(v, col.Type)
		if err != nil {
			return nil, errors.NewTypeError("row %d, column %q: %s", r, col.Name, err.Error())
		}
		coerced[r] = cv
	}
	col.Nullable = nullable

	cols := make([]Column, len(t.cols), len(t.cols)+1)
	copy(cols, t.cols)
	cols = append(cols, col)
	data := make([][]any, len(t.data), len(t.data)+1)
	copy(data, t.data)
	data = append(data, coerced)
	return newFromColumns(cols, data, t.rows), nil
}

// SelectRows returns a new Table containing the rows at the given
// indices, in the given order. Indices must be within bounds.
func (t *Table) SelectRows(indices []int) (*Table, error) {
	for _, i := range indices {
		if i < 0 || i >= t.rows {
			return nil, errors.NewNotFoundError("row index %d out of range [0,%d)", i, t.rows)
		}
	}
	cols := make([]Column, len(t.cols))
	copy(cols, t.cols)
	data := make([][]any, len(t.data))
	for c := range t.data {
		vals := make([]any, len(indices))
		for j, i := range indices {
			vals[j] = t.data[c][i]
		}
		data[c] = vals
	}
	return newFromColumns(cols, data, len(indices)), nil
}

// Equal reports whether two snapshots have identical schemas and cell
// values. Used by idempotence checks and tests.
func (t *Table) Equal(other *Table) bool {
	if other == nil || t.rows != other.rows || len(t.cols) != len(other.cols) {
		return false
	}
	for i := range t.cols {
		if t.cols[i] != other.cols[i] {
			return false
		}
	}
	for c := range t.data {
		for r := 0; r < t.rows; r++ {
			if !ValueEqual(t.data[c][r], other.data[c][r]) {
				return false
			}
		}
	}
	return true
}

func newFromColumns(cols []Column, data [][]any, rows int) *Table {
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		byName[c.Name] = i
	}
	return &Table{cols: cols, data: data, rows: rows, byName: byName}
}
