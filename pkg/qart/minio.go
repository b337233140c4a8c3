package qart

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store using MinIO/S3-compatible storage.
type MinioStore struct {
	client *minio.Client
}

// MinioConfig holds configuration for S3-compatible storage.
type MinioConfig struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// NewMinioStore creates a new MinioStore with the given configuration.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinioStore{client: client}, nil
}

// Download retrieves an object into a local file.
func (s *MinioStore) Download(ctx context.Context, loc Location, path string) error {
	err := s.client.FGetObject(ctx, loc.Bucket, loc.Key, path, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return err
	}
	return nil
}

// Upload stores a local file as an object.
func (s *MinioStore) Upload(ctx context.Context, loc Location, path string) error {
	_, err := s.client.FPutObject(ctx, loc.Bucket, loc.Key, path, minio.PutObjectOptions{})
	return err
}

// Put stores an in-memory body as an object.
func (s *MinioStore) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType: contentType,
	}
	_, err := s.client.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(body), int64(len(body)), opts)
	return err
}

// Exists checks for an object with a stat call.
func (s *MinioStore) Exists(ctx context.Context, loc Location) (bool, error) {
	_, err := s.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isMinioNotFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.StatusCode == http.StatusNotFound
}

// Ensure MinioStore implements Store.
var _ Store = (*MinioStore)(nil)
