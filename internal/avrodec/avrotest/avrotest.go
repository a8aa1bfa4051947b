// Package avrotest builds Avro containers for tests.
package avrotest

import (
	"bytes"
	"testing"

	"github.com/linkedin/goavro/v2"
)

// RateSchema mirrors the rate events the job is pointed at: an id, an
// optional source and a nested decoded token.
const RateSchema = `{
  "type": "record",
  "name": "RateEvent",
  "namespace": "com.example.rates",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "source", "type": ["null", "string"], "default": null},
    {"name": "decoded_rate_token", "type": {
      "type": "record",
      "name": "RateToken",
      "fields": [
        {"name": "a", "type": "long"},
        {"name": "b", "type": "long"}
      ]
    }}
  ]
}`

// Rate returns a native datum for RateSchema. An empty source is encoded as
// null.
func Rate(id, a, b int64, source string) map[string]any {
	var src any
	if source != "" {
		src = goavro.Union("string", source)
	}
	return map[string]any{
		"id":     id,
		"source": src,
		"decoded_rate_token": map[string]any{
			"a": a,
			"b": b,
		},
	}
}

// Container encodes datums as an object container file with the given schema
// and compression codec ("" for null).
func Container(tb testing.TB, schema, codec string, datums ...map[string]any) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &buf,
		Schema:          schema,
		CompressionName: codec,
	})
	if err != nil {
		tb.Fatalf("avrotest: new writer: %v", err)
	}
	if len(datums) > 0 {
		items := make([]any, len(datums))
		for i, d := range datums {
			items[i] = d
		}
		if err := w.Append(items); err != nil {
			tb.Fatalf("avrotest: append: %v", err)
		}
	}
	return buf.Bytes()
}
