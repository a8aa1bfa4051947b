// Package s3store implements storage.Service on AWS S3 with aws-sdk-go.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"avro_etl/internal/storage"
)

// multipartThreshold is the body size above which Put goes through the
// s3manager uploader instead of a single PutObject.
const multipartThreshold = 64 << 20 // 64 MiB

// Config selects the region and, for S3-compatible targets, the endpoint.
type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Store is an S3-backed storage.Service.
type Store struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
}

// New opens an AWS session. Credentials come from the default chain unless
// an access key is configured.
func New(cfg Config) (*Store, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.PathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3store: session: %w", err)
	}
	return NewWithClient(s3.New(sess)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client s3iface.S3API) *Store {
	return &Store{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	err := s.client.ListObjectsPagesWithContext(ctx,
		&s3.ListObjectsInput{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		},
		func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				out = append(out, storage.Object{
					Key:          aws.StringValue(obj.Key),
					LastModified: aws.TimeValue(obj.LastModified),
					Size:         aws.Int64Value(obj.Size),
				})
			}
			return !lastPage
		})
	if err != nil {
		return nil, fmt.Errorf("s3store: list s3://%s/%s: %w", bucket, prefix, err)
	}
	return out, nil
}

func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get s3://%s/%s: %w", bucket, key, err)
	}
	return obj.Body, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, opts storage.PutOptions) error {
	var contentType *string
	if opts.ContentType != "" {
		contentType = aws.String(opts.ContentType)
	}
	meta := aws.StringMap(opts.Metadata)

	if len(body) > multipartThreshold {
		res, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: contentType,
			Metadata:    meta,
		})
		if err != nil {
			return fmt.Errorf("s3store: upload s3://%s/%s: %w", bucket, key, err)
		}
		log.Printf("s3store: uploaded %d bytes to %s", len(body), res.Location)
		return nil
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: contentType,
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("s3store: put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
