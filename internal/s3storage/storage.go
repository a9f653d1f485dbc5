// Package s3storage keeps receipt documents in a MinIO/S3 bucket.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/receipt"
)

const (
	keyPrefix   = "receipts"
	contentType = "application/pdf"
)

// Storage wraps MinIO/S3 interactions for receipt documents.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.ReceiptBucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the receipt bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func objectKey(id string) string {
	return path.Join(keyPrefix, id+".pdf")
}

// Put uploads a rendered receipt.
func (s *Storage) Put(ctx context.Context, id string, pdf []byte) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(id), bytes.NewReader(pdf), int64(len(pdf)), opts)
	if err != nil {
		return fmt.Errorf("upload receipt %s: %w", id, err)
	}
	return nil
}

// Get downloads a receipt. GetObject is lazy, so Stat surfaces a missing
// key before reading.
func (s *Storage) Get(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", id, err)
	}
	defer obj.Close()
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, receipt.ErrNotFound
		}
		return nil, fmt.Errorf("stat receipt %s: %w", id, err)
	}
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", id, err)
	}
	return buf, nil
}

var _ receipt.Store = (*Storage)(nil)
