// Package source selects Avro objects from a bucket by last-modified time and
// decodes them into records.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"avro_etl/internal/avrodec"
	"avro_etl/internal/datefmt"
	"avro_etl/internal/record"
	"avro_etl/internal/storage"
)

// ErrSourceUnavailable reports that the bucket could not be listed or a
// selected object could not be opened.
var ErrSourceUnavailable = errors.New("source: unavailable")

// Config controls which objects are selected.
type Config struct {
	Bucket string
	// Prefix is the listing prefix.
	Prefix string
	// Marker must appear in the key, e.g. ".avro".
	Marker string
	// Glob, when set, must also match the key (doublestar syntax).
	Glob string
	// Location is the zone boundaries are expressed in; nil means UTC.
	Location *time.Location
	Verbose  bool
}

// Stats summarizes one selection pass.
type Stats struct {
	ObjectsListed   int
	ObjectsSelected int
	BytesRead       int64
	Records         int
}

// Selector lists, filters and decodes source objects.
type Selector struct {
	svc storage.Service
	cfg Config
	fmt datefmt.Formatter
	now func() time.Time
}

// New validates cfg and returns a Selector reading from svc.
func New(svc storage.Service, cfg Config) (*Selector, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("source: bucket is required")
	}
	if cfg.Glob != "" && !doublestar.ValidatePattern(cfg.Glob) {
		return nil, fmt.Errorf("source: invalid glob %q", cfg.Glob)
	}
	return &Selector{
		svc: svc,
		cfg: cfg,
		fmt: datefmt.New(cfg.Location),
		now: time.Now,
	}, nil
}

// WithClock replaces the clock used to resolve Default boundaries.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// Resolve turns begin/end parameters into a range, expanding Default.
func (s *Selector) Resolve(begin, end string) (datefmt.Range, error) {
	return s.fmt.ResolveRange(begin, end, s.now())
}

// Select returns every record from objects last modified in [begin, end),
// in listing order. Either bound may be datefmt.Default.
func (s *Selector) Select(ctx context.Context, begin, end string) ([]record.Record, error) {
	rng, err := s.Resolve(begin, end)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	_, err = s.Run(ctx, rng, func(r record.Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Candidates lists the prefix and keeps the objects that match the marker,
// the glob and the range.
func (s *Selector) Candidates(ctx context.Context, rng datefmt.Range) ([]storage.Object, int, error) {
	objs, err := s.svc.List(ctx, s.cfg.Bucket, s.cfg.Prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var keep []storage.Object
	for _, o := range objs {
		ok, err := s.matches(o, rng)
		if err != nil {
			return nil, len(objs), err
		}
		if ok {
			keep = append(keep, o)
		}
	}
	return keep, len(objs), nil
}

func (s *Selector) matches(o storage.Object, rng datefmt.Range) (bool, error) {
	if !strings.Contains(o.Key, s.cfg.Marker) {
		return false, nil
	}
	if s.cfg.Glob != "" {
		ok, err := doublestar.Match(s.cfg.Glob, o.Key)
		if err != nil {
			return false, fmt.Errorf("source: glob %q: %w", s.cfg.Glob, err)
		}
		if !ok {
			return false, nil
		}
	}
	mod, err := s.fmt.Format(o.LastModified, 0, false)
	if err != nil {
		return false, fmt.Errorf("source: %s: last modified: %w", o.Key, err)
	}
	return rng.Contains(mod), nil
}

// Run decodes every selected object in listing order and passes each record
// to fn. Objects are streamed, so only one decode block is held at a time.
func (s *Selector) Run(ctx context.Context, rng datefmt.Range, fn func(record.Record) error) (Stats, error) {
	var st Stats
	log.Printf("source: bucket=%s prefix=%s range=%s", s.cfg.Bucket, s.cfg.Prefix, rng)

	objs, listed, err := s.Candidates(ctx, rng)
	st.ObjectsListed = listed
	if err != nil {
		return st, err
	}
	st.ObjectsSelected = len(objs)

	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := s.decodeObject(ctx, o, fn)
		st.Records += n
		if err != nil {
			return st, err
		}
		st.BytesRead += o.Size
		if s.cfg.Verbose {
			log.Printf("source: %s: %d records", o.Key, n)
		}
	}

	log.Printf("source: listed=%d selected=%d records=%d", st.ObjectsListed, st.ObjectsSelected, st.Records)
	return st, nil
}

func (s *Selector) decodeObject(ctx context.Context, o storage.Object, fn func(record.Record) error) (int, error) {
	rc, err := s.svc.Open(ctx, s.cfg.Bucket, o.Key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer rc.Close()

	n := 0
	err = avrodec.Stream(rc, func(r record.Record) error {
		n++
		return fn(r)
	})
	if err != nil {
		if errors.Is(err, avrodec.ErrDecode) {
			return n, fmt.Errorf("%s: %w", o.Key, err)
		}
		return n, err
	}
	return n, nil
}
