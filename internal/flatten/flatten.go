// Package flatten lifts the keys of nested record fields into the parent
// record as "<field>_<key>" columns.
package flatten

import (
	"errors"
	"fmt"
	"sort"

	"avro_etl/internal/record"
)

var (
	// ErrMissingField reports a named field absent from a record.
	ErrMissingField = errors.New("flatten: missing field")
	// ErrTypeMismatch reports a named field whose value is not a mapping.
	ErrTypeMismatch = errors.New("flatten: field is not a mapping")
	// ErrKeyCollision reports two writers of one output key under Reject.
	ErrKeyCollision = errors.New("flatten: key collision")
)

// Policy decides what happens when two sources produce the same output key.
type Policy int

const (
	// Overwrite keeps the last write. Fields are applied in argument order,
	// nested keys in sorted order, and lifted keys win over top-level keys.
	Overwrite Policy = iota
	// Reject fails the batch with ErrKeyCollision.
	Reject
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "overwrite":
		return Overwrite, nil
	case "reject", "error":
		return Reject, nil
	}
	return Overwrite, fmt.Errorf("flatten: unknown collision policy %q", s)
}

func (p Policy) String() string {
	if p == Reject {
		return "reject"
	}
	return "overwrite"
}

// Flattener applies a collision policy.
type Flattener struct {
	Policy Policy
}

// Flatten flattens fields in every record with the Overwrite policy.
func Flatten(records []record.Record, fields ...string) ([]record.Record, error) {
	return Flattener{}.Flatten(records, fields...)
}

// Flatten returns new records; the inputs are not modified. The first
// failing record aborts the batch.
func (f Flattener) Flatten(records []record.Record, fields ...string) ([]record.Record, error) {
	out := make([]record.Record, 0, len(records))
	for i, r := range records {
		fr, err := f.One(r, fields...)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, fr)
	}
	return out, nil
}

// One flattens a single record.
func (f Flattener) One(r record.Record, fields ...string) (record.Record, error) {
	res := r.Clone()
	if len(fields) == 0 {
		return res, nil
	}

	lifted := make(map[string]any)
	for _, name := range fields {
		v, ok := res[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
		}
		nested, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is %T", ErrTypeMismatch, name, v)
		}
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nk := name + "_" + k
			if _, dup := lifted[nk]; dup && f.Policy == Reject {
				return nil, fmt.Errorf("%w: %q written twice", ErrKeyCollision, nk)
			}
			lifted[nk] = nested[k]
		}
	}
	for _, name := range fields {
		delete(res, name)
	}

	for k, v := range lifted {
		if _, dup := res[k]; dup && f.Policy == Reject {
			return nil, fmt.Errorf("%w: %q shadows a top-level field", ErrKeyCollision, k)
		}
		res[k] = v
	}
	return res, nil
}
