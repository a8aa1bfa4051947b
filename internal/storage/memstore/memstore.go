// Package memstore is an in-memory storage.Service. Listing order is
// insertion order, like a store that does not sort its listings.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"avro_etl/internal/storage"
)

type object struct {
	key      string
	body     []byte
	modified time.Time
	opts     storage.PutOptions
}

// Store holds objects per bucket.
type Store struct {
	mu      sync.Mutex
	buckets map[string][]*object
	now     func() time.Time

	// ListErr and PutErr, when set, are returned by List and Put.
	ListErr error
	PutErr  error
}

// New returns an empty store that stamps puts with time.Now.
func New() *Store {
	return &Store{buckets: map[string][]*object{}, now: time.Now}
}

// Add stores an object with an explicit last-modified time.
func (s *Store) Add(bucket, key string, body []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(bucket, &object{key: key, body: body, modified: modified})
}

func (s *Store) upsert(bucket string, o *object) {
	objs := s.buckets[bucket]
	for i, existing := range objs {
		if existing.key == o.key {
			objs[i] = o
			return
		}
	}
	s.buckets[bucket] = append(objs, o)
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []storage.Object
	for _, o := range s.buckets[bucket] {
		if strings.HasPrefix(o.key, prefix) {
			out = append(out, storage.Object{Key: o.key, LastModified: o.modified, Size: int64(len(o.body))})
		}
	}
	return out, nil
}

func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, ok := s.Get(bucket, key)
	if !ok {
		return nil, fmt.Errorf("memstore: %s/%s: no such key", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, opts storage.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	cp := append([]byte(nil), body...)
	s.upsert(bucket, &object{key: key, body: cp, modified: s.now(), opts: opts})
	return nil
}

// Get returns a copy of an object's body.
func (s *Store) Get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.buckets[bucket] {
		if o.key == key {
			return append([]byte(nil), o.body...), true
		}
	}
	return nil, false
}

// Metadata returns the metadata an object was put with.
func (s *Store) Metadata(bucket, key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.buckets[bucket] {
		if o.key == key {
			return o.opts.Metadata
		}
	}
	return nil
}

// Keys returns every key in bucket in listing order.
func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, o := range s.buckets[bucket] {
		keys = append(keys, o.key)
	}
	return keys
}
