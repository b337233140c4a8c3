package qart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store on Google Cloud Storage for gs:// locations.
// The client is created on first use so jobs that never touch gs:// do not
// need Google credentials.
type GCSStore struct {
	once    sync.Once
	client  *storage.Client
	initErr error
}

// NewGCSStore returns a lazily connected GCS store.
func NewGCSStore() *GCSStore {
	return &GCSStore{}
}

func (s *GCSStore) bucket(ctx context.Context, name string) (*storage.BucketHandle, error) {
	s.once.Do(func() {
		s.client, s.initErr = storage.NewClient(ctx)
	})
	if s.initErr != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", s.initErr)
	}
	return s.client.Bucket(name), nil
}

// Download streams an object into a local file.
func (s *GCSStore) Download(ctx context.Context, loc Location, path string) error {
	b, err := s.bucket(ctx, loc.Bucket)
	if err != nil {
		return err
	}

	r, err := b.Object(loc.Key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return fmt.Errorf("failed to open object %s in bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to download object %s from bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	return f.Close()
}

// Upload streams a local file into an object.
func (s *GCSStore) Upload(ctx context.Context, loc Location, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.write(ctx, loc, f, "")
}

// Put stores an in-memory body.
func (s *GCSStore) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	return s.write(ctx, loc, bytes.NewReader(body), contentType)
}

func (s *GCSStore) write(ctx context.Context, loc Location, r io.Reader, contentType string) error {
	b, err := s.bucket(ctx, loc.Bucket)
	if err != nil {
		return err
	}

	w := b.Object(loc.Key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", loc.Key, loc.Bucket, err)
	}
	return nil
}

// Exists fetches object attributes.
func (s *GCSStore) Exists(ctx context.Context, loc Location) (bool, error) {
	b, err := s.bucket(ctx, loc.Bucket)
	if err != nil {
		return false, err
	}
	if _, err := b.Object(loc.Key).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ensure GCSStore implements Store.
var _ Store = (*GCSStore)(nil)
