// Package media stores reflection attachments in S3-compatible object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service wraps the MinIO client. A nil *Service means attachments are
// disabled; callers check IsConfigured.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// IsConfigured reports whether uploads can be accepted.
func (s *Service) IsConfigured() bool {
	return s != nil && s.client != nil
}

// Put streams an object into the bucket under key.
func (s *Service) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get opens an object for reading. The caller closes the returned reader.
func (s *Service) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return obj, nil
}

// PresignedGetURL returns a short-lived download URL for an object.
func (s *Service) PresignedGetURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	params := make(map[string][]string)
	if filename != "" {
		params["response-content-disposition"] = []string{fmt.Sprintf("attachment; filename=%q", filename)}
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// Remove deletes an object. Missing objects are not an error.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// RemoveAll deletes every listed object, continuing past individual failures
// and returning the first error seen.
func (s *Service) RemoveAll(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
