// Package avrodec reads Avro object container files into records.
//
// A container starts with a header carrying the writer schema and a sync
// marker, followed by data blocks. goavro does the binary work; this package
// turns its native values into plain records, dropping the single-key maps
// goavro uses to tag union branches so a nullable string comes back as a
// string.
package avrodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"

	"avro_etl/internal/record"
)

// ErrDecode reports a bad container header, a truncated or corrupt block, or
// a datum that is not a record.
var ErrDecode = errors.New("avrodec: decode error")

// Decode reads every record in a complete container held in memory.
func Decode(data []byte) ([]record.Record, error) {
	var out []record.Record
	err := Stream(bytes.NewReader(data), func(r record.Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream decodes records from r one block at a time and hands each to fn.
// An error from fn stops decoding and is returned as is.
func Stream(r io.Reader, fn func(record.Record) error) error {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrDecode, err)
	}

	schema, err := parseSchema(ocf.Codec().Schema())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	n := 0
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrDecode, n, err)
		}
		m, ok := unwrap(schema, datum).(map[string]any)
		if !ok {
			return fmt.Errorf("%w: record %d: top-level datum is %T, not a record", ErrDecode, n, datum)
		}
		if err := fn(record.Record(m)); err != nil {
			return err
		}
		n++
	}
	if err := ocf.Err(); err != nil {
		return fmt.Errorf("%w: after %d records: %v", ErrDecode, n, err)
	}
	return nil
}
