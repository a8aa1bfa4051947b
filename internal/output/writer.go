// Package output serializes a table and puts it into the output bucket under
// a time-stamped key.
package output

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"avro_etl/internal/storage"
	"avro_etl/internal/table"
)

// ErrWrite reports a failed put. Nothing is retried here.
var ErrWrite = errors.New("output: write failed")

// keyTimeLayout is YYYYMMDD_HHMMSS.
const keyTimeLayout = "20060102_150405"

// Format selects the serialization.
type Format string

const (
	CSV     Format = "csv"
	Parquet Format = "parquet"
)

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", CSV:
		return CSV, nil
	case Parquet:
		return Parquet, nil
	}
	return "", fmt.Errorf("output: unknown format %q", s)
}

func (f Format) contentType() string {
	if f == Parquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv; charset=utf-8"
}

// Config configures a Writer.
type Config struct {
	Bucket string
	Format Format
	// RunID, when set, is appended to generated keys so two runs in the same
	// second never share a key.
	RunID string
}

// WriteResult describes a stored artifact.
type WriteResult struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Bytes    int    `json:"bytes"`
	Rows     int    `json:"rows"`
	Checksum string `json:"content_xxh3"` // xxh3-64, hex
}

// Writer puts tables into a bucket.
type Writer struct {
	svc storage.Service
	cfg Config
	now func() time.Time
}

// New returns a Writer for cfg.Bucket.
func New(svc storage.Service, cfg Config) (*Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("output: bucket is required")
	}
	if cfg.Format == "" {
		cfg.Format = CSV
	}
	return &Writer{svc: svc, cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the clock used for key timestamps.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// GenerateKey returns <prefix>_<YYYYMMDD_HHMMSS>.<ext>, with _<runid> before
// the extension when the writer has a run id.
func (w *Writer) GenerateKey(prefix string) string {
	return Key(prefix, w.now(), w.cfg.RunID, string(w.cfg.Format))
}

// Key builds an output key.
func Key(prefix string, at time.Time, runID, ext string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(at.Format(keyTimeLayout))
	if runID != "" {
		b.WriteByte('_')
		b.WriteString(runID)
	}
	b.WriteByte('.')
	b.WriteString(ext)
	return b.String()
}

// Encode serializes tbl in the writer's format.
func (w *Writer) Encode(tbl *table.Table) ([]byte, error) {
	if w.cfg.Format == Parquet {
		return tbl.Parquet()
	}
	return tbl.CSV()
}

// Write serializes tbl and stores it with a single put under a fresh key.
func (w *Writer) Write(ctx context.Context, tbl *table.Table, prefix string) (WriteResult, error) {
	body, err := w.Encode(tbl)
	if err != nil {
		return WriteResult{}, err
	}
	key := w.GenerateKey(prefix)
	sum := strconv.FormatUint(xxh3.Hash(body), 16)

	err = w.svc.Put(ctx, w.cfg.Bucket, key, body, storage.PutOptions{
		ContentType: w.cfg.Format.contentType(),
		Metadata: map[string]string{
			"record-count": strconv.Itoa(tbl.Len()),
			"content-xxh3": sum,
		},
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("%w: %s/%s: %v", ErrWrite, w.cfg.Bucket, key, err)
	}

	log.Printf("output: wrote %d rows (%d bytes) to %s/%s", tbl.Len(), len(body), w.cfg.Bucket, key)
	return WriteResult{
		Bucket:   w.cfg.Bucket,
		Key:      key,
		Bytes:    len(body),
		Rows:     tbl.Len(),
		Checksum: sum,
	}, nil
}
