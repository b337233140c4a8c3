package qart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements Store on Amazon S3 with the SDK transfer manager.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Store builds an S3Store from a loaded AWS config. endpoint is
// optional and switches to path-style addressing when set.
func NewS3Store(cfg aws.Config, endpoint string) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

// Download fetches an object into a local file. The partial file is removed
// on failure.
func (s *S3Store) Download(ctx context.Context, loc Location, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		if isS3NotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return fmt.Errorf("failed to download object %s from bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	return closeErr
}

// Upload sends a local file to S3, using multipart for large outputs.
func (s *S3Store) Upload(ctx context.Context, loc Location, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	return nil
}

// Put stores an in-memory body.
func (s *S3Store) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s to bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	return nil
}

// Exists issues a HEAD request for the object.
func (s *S3Store) Exists(ctx context.Context, loc Location) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// Ensure S3Store implements Store.
var _ Store = (*S3Store)(nil)
