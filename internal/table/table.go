// Package table holds the schema-flexible tabular container produced by the
// flatten engine: ordered rows whose column sets may differ, unioned into one
// column list at build time.
package table

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Row is an ordered record of named cells. A nil value is an absent cell.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// Set assigns a cell, appending the column if it is new to the row
func (r *Row) Set(column string, value any) {
	if _, ok := r.values[column]; !ok {
		r.keys = append(r.keys, column)
	}
	r.values[column] = value
}

// Merge appends every cell of other in its order
func (r *Row) Merge(other *Row) {
	for _, k := range other.keys {
		r.Set(k, other.values[k])
	}
}

// Get returns a cell and whether the row has that column at all
func (r *Row) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Columns returns the row's columns in insertion order
func (r *Row) Columns() []string {
	return slices.Clone(r.keys)
}

// Table is a set of rows sharing the union of their columns
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// FromRows unions the columns of rows in first-seen order. Row order is kept.
func FromRows(rows []*Row) *Table {
	t := &Table{
		Columns: []string{},
		Rows:    make([]map[string]any, 0, len(rows)),
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		record := make(map[string]any, len(r.keys))
		for _, k := range r.keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				t.Columns = append(t.Columns, k)
			}
			record[k] = r.values[k]
		}
		t.Rows = append(t.Rows, record)
	}
	return t
}

// New builds a table from stored columns and records
func New(columns []string, rows []map[string]any) *Table {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows or no columns
func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0 || len(t.Columns) == 0
}

// Value returns the cell at row i, nil when the row does not carry the column
func (t *Table) Value(i int, column string) any {
	if i < 0 || i >= len(t.Rows) {
		return nil
	}
	return t.Rows[i][column]
}

// Clone returns a copy that shares no maps or slices with t
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    make([]map[string]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		record := make(map[string]any, len(r))
		for k, v := range r {
			record[k] = v
		}
		c.Rows[i] = record
	}
	return c
}

// Drop removes a column from the table and every row
func (t *Table) Drop(column string) {
	idx := slices.Index(t.Columns, column)
	if idx < 0 {
		return
	}
	t.Columns = slices.Delete(t.Columns, idx, idx+1)
	for _, r := range t.Rows {
		delete(r, column)
	}
}

// Replace moves the cells of source into target, keeping target's position.
// If target does not exist, source is renamed in place.
func (t *Table) Replace(target, source string) {
	src := slices.Index(t.Columns, source)
	if src < 0 {
		return
	}
	dst := slices.Index(t.Columns, target)
	if dst < 0 {
		t.Columns[src] = target
	} else {
		t.Columns = slices.Delete(t.Columns, src, src+1)
	}
	for _, r := range t.Rows {
		v, ok := r[source]
		delete(r, source)
		if ok {
			r[target] = v
		} else {
			delete(r, target)
		}
	}
}

// Page returns rows [offset, offset+limit). A limit <= 0 means no limit.
func (t *Table) Page(offset, limit int) *Table {
	if offset < 0 {
		offset = 0
	}
	if offset > len(t.Rows) {
		offset = len(t.Rows)
	}
	end := len(t.Rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    t.Rows[offset:end],
	}
}

// Records returns every row with all table columns present, values
// normalized for serialization: times as RFC3339 strings and durations as
// whole seconds.
func (t *Table) Records() []map[string]any {
	records := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			record[c] = Normalize(r[c])
		}
		records[i] = record
	}
	return records
}

// Normalize converts a cell to a value every storage backend and encoder
// handles the same way
func Normalize(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case time.Duration:
		return int64(val / time.Second)
	default:
		return v
	}
}

// FormatCell renders a cell for text exports. Absent cells are empty.
func FormatCell(v any) string {
	switch val := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
