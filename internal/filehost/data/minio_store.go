package data

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig holds the object-storage connection settings
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// MinIOStore stores blobs as objects in a single MinIO/S3 bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStore connects to MinIO and ensures the bucket exists
func NewMinIOStore(ctx context.Context, cfg *MinIOConfig, logger *zap.Logger) (*MinIOStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("bucket created", zap.String("bucket", cfg.Bucket))
	}

	return store, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, content io.Reader, size int64) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, content, size, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug("object stored",
		zap.String("bucket", s.bucket),
		zap.String("key", info.Key),
		zap.Int64("bytes", info.Size))

	return info.Key, nil
}

func (s *MinIOStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy; surface NotFound now rather than at first read
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

func (s *MinIOStore) GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, fmt.Errorf("invalid object range: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get object range: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

func (s *MinIOStore) Delete(ctx context.Context, path string) error {
	// RemoveObject succeeds on missing keys, so check presence first to keep
	// the ErrBlobNotFound contract
	if _, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("failed to stat object: %w", err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (s *MinIOStore) SizeOf(ctx context.Context, path string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, ErrBlobNotFound
		}
		return 0, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Size, nil
}

// isNoSuchKey reports whether err is a missing-object error from MinIO
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
