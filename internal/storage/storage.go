// Package storage defines the object-store contract the job reads from and
// writes to. Adapters live in subpackages: s3store (AWS S3), miniostore
// (S3-compatible endpoints) and memstore (in-process, for tests and dry runs).
package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Object describes one listed object.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// PutOptions carries optional attributes for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Service is the narrow object-store interface. The bucket is an argument on
// every call so a single client can serve different source and output buckets.
type Service interface {
	// List returns the objects under prefix in the order the store reports them.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	// Open streams an object's body. The caller closes it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Put stores body under key in a single request.
	Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error
}

// Probe checks that bucket can be listed.
func Probe(ctx context.Context, svc Service, bucket, prefix string) (int, error) {
	objs, err := svc.List(ctx, bucket, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	return len(objs), nil
}
