// Package objectstore is the presigned-URL facade over an S3-compatible
// object store: PUT/GET URL issuance and HEAD-object verification.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by HeadObject when the object does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Config wires the client to a running S3-compatible endpoint.
type Config struct {
	Enable     bool
	Endpoint   string
	Region     string
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
}

// Service issues presigned URLs and checks object metadata against a
// single bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// New dials the object store and makes sure the configured bucket
// exists, creating it if necessary.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: new client: %w", err)
	}

	svc := &Service{client: client, bucket: cfg.BucketName}
	if err := svc.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objectstore: bucket check: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objectstore: make bucket: %w", err)
	}
	return nil
}

// PresignResult is the outcome of a presigned URL issuance.
type PresignResult struct {
	Path     string
	URL      string
	ExpireAt int64
}

// PresignPut mints a fresh random object key under a given suffix
// (typically a file extension) and returns a presigned PUT URL for it.
func (s *Service) PresignPut(ctx context.Context, suffix string, expire time.Duration) (*PresignResult, error) {
	path := uuid.New().String()
	if suffix != "" {
		path = path + "." + suffix
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, path, expire)
	if err != nil {
		return nil, fmt.Errorf("objectstore: presign put: %w", err)
	}
	return &PresignResult{
		Path:     path,
		URL:      u.String(),
		ExpireAt: time.Now().Add(expire).Unix(),
	}, nil
}

// PresignGet returns a presigned GET URL for an existing object path.
func (s *Service) PresignGet(ctx context.Context, path string, expire time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, expire, nil)
	if err != nil {
		return "", fmt.Errorf("objectstore: presign get: %w", err)
	}
	return u.String(), nil
}

// ObjectInfo is the subset of HEAD-object metadata the upload-completion
// flow needs to verify a client's declared hash and size.
type ObjectInfo struct {
	ETag          string
	ContentLength int64
}

// HeadObject issues a HEAD request and returns the object's ETag and
// content length, or ErrNotFound.
func (s *Service) HeadObject(ctx context.Context, path string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: stat object: %w", err)
	}
	if info.ETag == "" || info.Size == 0 {
		return nil, ErrNotFound
	}
	return &ObjectInfo{ETag: info.ETag, ContentLength: info.Size}, nil
}
