package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/AnTengye/contracthub/config"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FileStorage keeps the document payload of each version. The workflow only
// sees the opaque reference returned by Put.
type FileStorage interface {
	Put(ctx context.Context, contractID, filename string, r io.Reader, size int64, contentType string) (ref string, err error)
	URL(ctx context.Context, ref, filename string) (string, error)
	Delete(ctx context.Context, ref string) error
}

var _ FileStorage = (*MinioStorage)(nil)

type MinioStorage struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioStorage(cfg *config.MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStorage{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ObjectKey builds the object name for an uploaded version file.
func ObjectKey(contractID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "document.pdf"
	}
	return fmt.Sprintf("contracts/%s/%s-%s", contractID, uuid.NewString(), name)
}

// Put uploads a version file and returns its object name
func (s *MinioStorage) Put(ctx context.Context, contractID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectKey(contractID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return objectName, nil
}

// URL generates a presigned download URL for the object with expiration
func (s *MinioStorage) URL(ctx context.Context, ref, filename string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ref, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return u.String(), nil
}

// Delete deletes a file from MINIO
func (s *MinioStorage) Delete(ctx context.Context, ref string) error {
	err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
