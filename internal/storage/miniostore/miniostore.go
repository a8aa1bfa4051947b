// Package miniostore implements storage.Service with minio-go for
// S3-compatible endpoints (MinIO, Ceph RGW, local test stacks).
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"avro_etl/internal/storage"
)

// Config holds connection settings.
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Store is a MinIO-backed storage.Service.
type Store struct {
	cli *minio.Client
}

// New builds a client. No request is made until the first call.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("miniostore: endpoint is required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("miniostore: client: %w", err)
	}
	return &Store{cli: cli}, nil
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	for info := range s.cli.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("miniostore: list %s/%s: %w", bucket, prefix, info.Err)
		}
		out = append(out, storage.Object{
			Key:          info.Key,
			LastModified: info.LastModified,
			Size:         info.Size,
		})
	}
	return out, nil
}

func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.cli.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("miniostore: get %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("miniostore: stat %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, opts storage.PutOptions) error {
	_, err := s.cli.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return fmt.Errorf("miniostore: put %s/%s: %w", bucket, key, err)
	}
	return nil
}
