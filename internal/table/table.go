// Package table turns flattened records into a column-oriented table and
// serializes it.
//
// Columns are the sorted union of record keys. Each column gets one kind,
// inferred from its non-null values; a column that sees two different kinds
// is a schema conflict, with no widening (an int column that meets a float is
// rejected). Null cells fit any column.
package table

import (
	"errors"
	"fmt"
	"sort"

	"avro_etl/internal/record"
)

// ErrSchemaConflict reports a column holding values of incompatible kinds.
var ErrSchemaConflict = errors.New("table: schema conflict")

// Table is immutable once built.
type Table struct {
	columns []string
	kinds   []Kind
	rows    [][]any
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Kinds returns the column kinds, aligned with Columns.
func (t *Table) Kinds() []Kind {
	return append([]Kind(nil), t.kinds...)
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of row i, aligned with Columns. Missing cells are nil.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Builder accumulates records one at a time.
type Builder struct {
	kinds map[string]Kind
	recs  []record.Record
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{kinds: map[string]Kind{}}
}

// Add infers the kinds of r's values and keeps r. It fails without keeping r
// when a value disagrees with a kind seen earlier in the same column.
func (b *Builder) Add(r record.Record) error {
	seen := make(map[string]Kind, len(r))
	for k, v := range r {
		kind := KindOf(v)
		prev, ok := b.kinds[k]
		if ok && kind != KindNull && prev != KindNull && kind != prev {
			return fmt.Errorf("%w: column %q is %s, record %d has %s", ErrSchemaConflict, k, prev, len(b.recs), kind)
		}
		seen[k] = kind
	}
	for k, kind := range seen {
		if prev, ok := b.kinds[k]; !ok || prev == KindNull {
			b.kinds[k] = kind
		}
	}
	b.recs = append(b.recs, r)
	return nil
}

// Len is the number of records added.
func (b *Builder) Len() int { return len(b.recs) }

// Table builds the table. The builder should not be used afterwards.
func (b *Builder) Table() *Table {
	cols := make([]string, 0, len(b.kinds))
	for k := range b.kinds {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	kinds := make([]Kind, len(cols))
	for i, c := range cols {
		kinds[i] = b.kinds[c]
	}

	rows := make([][]any, len(b.recs))
	for i, r := range b.recs {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = r[c]
		}
		rows[i] = row
	}
	b.recs = nil
	return &Table{columns: cols, kinds: kinds, rows: rows}
}

// Materialize builds a table from records.
func Materialize(records []record.Record) (*Table, error) {
	b := NewBuilder()
	for _, r := range records {
		if err := b.Add(r); err != nil {
			return nil, err
		}
	}
	return b.Table(), nil
}
