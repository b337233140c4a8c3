// Package qart provides object storage for job media using S3-compatible
// and Google Cloud storage.
package qart

import (
	"context"
	"fmt"
	"strings"
)

// Location addresses one object: scheme://bucket/key.
type Location struct {
	Scheme string `json:"scheme"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"` // path without leading "/", query and fragment kept verbatim
}

// String renders the location back as a URL.
func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// WithKey returns a copy of l pointing at key in the same bucket.
func (l Location) WithKey(key string) Location {
	l.Key = key
	return l
}

// ParseURL splits an object URL such as "s3://bucket/dir/file.mp4" into
// its parts. The key is taken verbatim: no percent-decoding happens, so
// segment patterns like "%03d.ts" survive untouched.
func ParseURL(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: missing bucket in %q", ErrInvalidURL, raw)
	}
	return Location{
		Scheme: strings.ToLower(scheme),
		Bucket: bucket,
		Key:    strings.TrimLeft(key, "/"),
	}, nil
}

// Store defines the object operations the wrapper needs.
type Store interface {
	// Download writes the object at loc to the local file path.
	// Returns ErrNotFound (wrapped) if the object doesn't exist.
	Download(ctx context.Context, loc Location, path string) error

	// Upload copies the local file path to loc, overwriting any object there.
	Upload(ctx context.Context, loc Location, path string) error

	// Put stores body at loc.
	Put(ctx context.Context, loc Location, body []byte, contentType string) error

	// Exists probes for an object at loc without transferring it.
	// A missing object is (false, nil).
	Exists(ctx context.Context, loc Location) (bool, error)
}
