// Package upload pushes transcoding results to object storage, skipping
// objects that already exist at their destination.
package upload

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

// Wildcard marks an output key as a pattern producing many files, such as
// "segments/%03d.ts". Such outputs are synced as a directory.
const Wildcard = "%"

// Outcome of a single object upload.
type Outcome string

const (
	Uploaded Outcome = "uploaded"
	Skipped  Outcome = "skipped"
)

// Object is one destination written or skipped during an upload.
type Object struct {
	Location qart.Location
	Path     string
	Outcome  Outcome
}

// Uploader copies local results to object storage.
type Uploader struct {
	store qart.Store
	log   *qlog.Logger
}

func New(store qart.Store, log *qlog.Logger) *Uploader {
	return &Uploader{store: store, log: log}
}

// Upload sends outputPath to outputURL. When the destination key contains
// the wildcard, every file under outputPath's directory is uploaded below
// the key's parent prefix. The first failure stops the upload.
func (u *Uploader) Upload(ctx context.Context, outputPath, outputURL string) ([]Object, error) {
	dest, err := qart.ParseURL(outputURL)
	if err != nil {
		return nil, qerr.New(qerr.CodeUploading, fmt.Errorf("parse output url: %w", err))
	}

	var objects []Object
	if strings.Contains(dest.Key, Wildcard) {
		objects, err = u.syncDir(ctx, filepath.Dir(outputPath), dest)
	} else {
		var obj Object
		obj, err = u.uploadFile(ctx, outputPath, dest)
		objects = append(objects, obj)
	}
	if err != nil {
		u.log.Error("upload failed",
			"source", filepath.Dir(outputPath)+"/",
			"bucket", dest.Bucket,
			"key", dest.Key,
			"error", err,
		)
		return objects, qerr.New(qerr.CodeUploading, err)
	}

	u.log.Info("results uploaded", "bucket", dest.Bucket, "key", dest.Key, "objects", len(objects))
	return objects, nil
}

// syncDir walks dir and uploads each file at prefix/<relative path>, where
// prefix is dest's key without its last segment.
func (u *Uploader) syncDir(ctx context.Context, dir string, dest qart.Location) ([]Object, error) {
	prefix := path.Dir(dest.Key)
	if prefix == "." {
		prefix = ""
	}
	u.log.Info("syncing directory", "source", dir, "bucket", dest.Bucket, "prefix", prefix)

	var objects []Object
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		obj, err := u.uploadFile(ctx, p, dest.WithKey(key))
		if err != nil {
			return err
		}
		objects = append(objects, obj)
		return nil
	})
	return objects, err
}

// uploadFile probes dest first and skips the transfer if an object is
// already there. A failed probe is treated as absent. The probe and the
// transfer are not atomic; concurrent writers race and the last one wins.
func (u *Uploader) uploadFile(ctx context.Context, localPath string, dest qart.Location) (Object, error) {
	obj := Object{Location: dest, Path: localPath}

	u.log.Info("searching object", "bucket", dest.Bucket, "key", dest.Key)
	exists, err := u.store.Exists(ctx, dest)
	if err != nil {
		u.log.Warn("existence probe failed, uploading", "bucket", dest.Bucket, "key", dest.Key, "error", err)
	}
	if exists {
		u.log.Info("object already exists, skipping", "bucket", dest.Bucket, "key", dest.Key)
		obj.Outcome = Skipped
		return obj, nil
	}

	u.log.Info("uploading", "path", localPath, "bucket", dest.Bucket, "key", dest.Key)
	if err := u.store.Upload(ctx, dest, localPath); err != nil {
		return obj, fmt.Errorf("upload %s to bucket %s key %s: %w", localPath, dest.Bucket, dest.Key, err)
	}
	obj.Outcome = Uploaded
	return obj, nil
}
