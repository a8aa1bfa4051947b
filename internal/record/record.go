// Package record holds the row type that flows between the decoder, the
// flattener and the table builder.
package record

import "sort"

// Record is one decoded Avro datum: field name to value. Values are strings,
// numbers, bools, time.Time, []byte, nested map[string]any, []any or nil.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
