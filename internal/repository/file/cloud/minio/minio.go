package minio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/repository/file"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/retry"
)

// objectStore is the part of *minio.Client the repository needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type FileRepository struct {
	client  objectStore
	bucket  string
	baseURL string
	retries retry.Strategy
}

func NewClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// NewMinIORepository makes sure the bucket exists. Result URLs are built from
// publicBaseURL when set, otherwise from the endpoint and bucket.
func NewMinIORepository(ctx context.Context, client objectStore, cfg config.MinIOConfig, publicBaseURL string, retries retry.Strategy) (*FileRepository, error) {
	baseURL := strings.TrimSuffix(publicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	r := &FileRepository{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		retries: retries,
	}

	if err := r.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *FileRepository) ensureBucket(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("%w: failed to check bucket %s: %v", file.ErrStorageError, r.bucket, err)
	}
	if exists {
		return nil
	}

	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("%w: failed to create bucket %s: %v", file.ErrStorageError, r.bucket, err)
	}
	return nil
}

func (r *FileRepository) Upload(ctx context.Context, srcPath, key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", file.ErrInvalidKey, key)
	}

	if _, err := os.Stat(srcPath); errors.Is(err, os.ErrNotExist) {
		return "", file.ErrFileNotFound
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(srcPath); err == nil {
		contentType = mt.String()
	}

	err := retry.DoContext(ctx, r.retries, func() error {
		_, err := r.client.FPutObject(ctx, r.bucket, key, srcPath, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to upload %s: %v", file.ErrStorageError, key, err)
	}

	return r.baseURL + "/" + key, nil
}
