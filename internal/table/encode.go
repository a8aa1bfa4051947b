package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// CSV renders a header row and one row per record, comma separated, LF line
// endings, quoting only where encoding/csv requires it.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.columns); err != nil {
		return nil, fmt.Errorf("table: csv header: %w", err)
	}
	line := make([]string, len(t.columns))
	for i, row := range t.rows {
		for j, v := range row {
			s, err := Text(v)
			if err != nil {
				return nil, fmt.Errorf("table: row %d column %q: %w", i, t.columns[j], err)
			}
			line[j] = s
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("table: csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("table: csv flush: %w", err)
	}
	return buf.Bytes(), nil
}

// parquetParallelism is the number of goroutines parquet-go uses to encode
// pages.
const parquetParallelism = 4

// Parquet renders the table as a Snappy-compressed Parquet file. Every column
// is an optional UTF8 string holding the same text as the CSV cell, so the
// two formats agree. Column names are reduced to [A-Za-z0-9_].
func (t *Table) Parquet() ([]byte, error) {
	names := parquetNames(t.columns)

	fields := make([]map[string]string, len(names))
	for i, n := range names {
		fields[i] = map[string]string{
			"Tag": "name=" + n + ", type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		}
	}
	schema, err := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	if err != nil {
		return nil, fmt.Errorf("table: parquet schema: %w", err)
	}

	fw := buffer.NewBufferFile()
	pw, err := writer.NewJSONWriter(string(schema), fw, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("table: parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range t.rows {
		obj := make(map[string]any, len(row))
		for j, v := range row {
			if v == nil {
				obj[names[j]] = nil
				continue
			}
			s, err := Text(v)
			if err != nil {
				return nil, fmt.Errorf("table: row %d column %q: %w", i, t.columns[j], err)
			}
			obj[names[j]] = s
		}
		line, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("table: row %d: %w", i, err)
		}
		if err := pw.Write(string(line)); err != nil {
			return nil, fmt.Errorf("table: parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("table: parquet finalize: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("table: parquet close: %w", err)
	}
	return fw.Bytes(), nil
}

func parquetNames(cols []string) []string {
	out := make([]string, len(cols))
	used := make(map[string]int, len(cols))
	for i, c := range cols {
		var b strings.Builder
		for _, r := range c {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		n := b.String()
		if n == "" || (n[0] >= '0' && n[0] <= '9') {
			n = "c_" + n
		}
		used[n]++
		if used[n] > 1 {
			n += "_" + strconv.Itoa(used[n])
		}
		out[i] = n
	}
	return out
}
