// Package assets uploads terminal-local binary assets (product and category
// images) to object storage and rewrites operation payloads to the remote reference.
package assets

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kimhsiao/tijara/backend/internal/logging"
)

// ObjectStore is the storage backend assets are written to.
type ObjectStore interface {
	// Exists reports whether key is already stored.
	Exists(ctx context.Context, key string) (bool, error)

	// PutFile uploads the file at path under key.
	PutFile(ctx context.Context, key, path, contentType string) error

	// URL returns the remote reference for key.
	URL(key string) string
}

// MinIOConfig holds MinIO (or any S3-compatible) connection settings.
type MinIOConfig struct {
	Endpoint      string // host:port, no scheme
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string // optional CDN or public bucket URL
}

// MinIOStore is an ObjectStore backed by minio-go.
type MinIOStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinIOStore connects to the endpoint and creates the bucket when missing.
func NewMinIOStore(ctx context.Context, cfg *MinIOConfig) (*MinIOStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if !cfg.UseSSL {
		logging.Warn("Asset storage is not using TLS", map[string]interface{}{"endpoint": cfg.Endpoint})
	}

	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(strings.TrimSuffix(endpoint, "/"), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("bucket %s does not exist and could not be created: %w", cfg.Bucket, err)
		}
		logging.Info("Created asset bucket", map[string]interface{}{"bucket": cfg.Bucket})
	}

	return &MinIOStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Exists reports whether key is already stored.
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

// PutFile uploads the file at path under key.
func (s *MinIOStore) PutFile(ctx context.Context, key, path, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// URL returns the public URL of key, or an s3:// reference without a public base.
func (s *MinIOStore) URL(key string) string {
	return objectURL(s.publicBaseURL, s.bucket, key)
}

func objectURL(publicBaseURL, bucket, key string) string {
	if publicBaseURL != "" {
		return publicBaseURL + "/" + key
	}
	return "s3://" + bucket + "/" + key
}
