// Package stage resolves job input and output locations to local paths,
// either by downloading into a private work directory or by translating
// keys onto a shared filesystem mount.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

// WorkDirPrefix names the temporary directories created in download mode.
const WorkDirPrefix = "ffmpeg_workdir_"

// Assets are the local paths a job works on.
type Assets struct {
	// Inputs is parallel to the input locations given to Stage.
	Inputs []string
	Output string
	// TempDir is only set in download mode.
	TempDir string
}

// Cleanup removes the work directory, if any. It is safe to call on a nil
// receiver and more than once.
func (a *Assets) Cleanup() error {
	if a == nil || a.TempDir == "" {
		return nil
	}
	err := os.RemoveAll(a.TempDir)
	a.TempDir = ""
	return err
}

// Request describes what to stage.
type Request struct {
	Inputs    []string
	OutputURL string
	// MountPoint selects shared-filesystem mode when non-empty.
	MountPoint string
}

// Stager resolves a Request against object storage.
type Stager struct {
	store qart.Store
	log   *qlog.Logger
}

func New(store qart.Store, log *qlog.Logger) *Stager {
	return &Stager{store: store, log: log}
}

// Stage resolves every input and the output. An empty OutputURL leaves
// Output empty. On error nothing is left behind on disk.
func (s *Stager) Stage(ctx context.Context, req Request) (*Assets, error) {
	var output *qart.Location
	if req.OutputURL != "" {
		loc, err := qart.ParseURL(req.OutputURL)
		if err != nil {
			return nil, qerr.New(qerr.CodeStaging, fmt.Errorf("parse output url: %w", err))
		}
		output = &loc
	}

	var (
		assets *Assets
		err    error
	)
	if req.MountPoint != "" {
		assets, err = s.resolveShared(req, output)
	} else {
		assets, err = s.download(ctx, req, output)
	}
	if err != nil {
		return nil, err
	}
	if assets.Output == "" {
		return assets, nil
	}

	if err := os.MkdirAll(filepath.Dir(assets.Output), 0o755); err != nil {
		assets.Cleanup()
		return nil, qerr.New(qerr.CodeStaging, fmt.Errorf("create output directory: %w", err))
	}
	return assets, nil
}

func (s *Stager) resolveShared(req Request, output *qart.Location) (*Assets, error) {
	assets := &Assets{
		Inputs: make([]string, 0, len(req.Inputs)),
	}
	if output != nil {
		assets.Output = filepath.Join(req.MountPoint, output.Key)
	}
	for _, raw := range req.Inputs {
		loc, err := qart.ParseURL(raw)
		if err != nil {
			return nil, qerr.New(qerr.CodeStaging, fmt.Errorf("parse input url: %w", err))
		}
		path := filepath.Join(req.MountPoint, loc.Key)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			s.log.Error("file not found on shared filesystem", "path", path)
			return nil, qerr.New(qerr.CodeStaging,
				fmt.Errorf("resolve input: %w", qerr.Newf(qerr.CodeNotFound, "missing %s", path)))
		}
		assets.Inputs = append(assets.Inputs, path)
	}
	return assets, nil
}

func (s *Stager) download(ctx context.Context, req Request, output *qart.Location) (*Assets, error) {
	dir, err := os.MkdirTemp("", WorkDirPrefix)
	if err != nil {
		return nil, qerr.New(qerr.CodeStaging, fmt.Errorf("create work directory: %w", err))
	}
	assets := &Assets{
		Inputs:  make([]string, 0, len(req.Inputs)),
		TempDir: dir,
	}
	if output != nil {
		assets.Output = filepath.Join(dir, output.Key)
	}

	for _, raw := range req.Inputs {
		path, err := s.fetch(ctx, raw, dir)
		if err != nil {
			assets.Cleanup()
			return nil, err
		}
		assets.Inputs = append(assets.Inputs, path)
	}
	return assets, nil
}

func (s *Stager) fetch(ctx context.Context, raw, dir string) (string, error) {
	loc, err := qart.ParseURL(raw)
	if err != nil {
		return "", qerr.New(qerr.CodeStaging, fmt.Errorf("parse input url: %w", err))
	}
	path := filepath.Join(dir, loc.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", qerr.New(qerr.CodeStaging, fmt.Errorf("create input directory: %w", err))
	}

	s.log.Info("downloading object", "bucket", loc.Bucket, "key", loc.Key, "path", path)
	if err := s.store.Download(ctx, loc, path); err != nil {
		s.log.Error("download failed", "bucket", loc.Bucket, "key", loc.Key, "error", err)
		if errors.Is(err, qart.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			err = qerr.New(qerr.CodeNotFound, err)
		}
		return "", qerr.New(qerr.CodeStaging, fmt.Errorf("download %s: %w", loc, err))
	}
	return path, nil
}
