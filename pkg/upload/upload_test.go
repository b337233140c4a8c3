package upload

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qart/qarttest"
	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestUpload_SingleFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out/result.mp4")
	writeFile(t, out, "encoded")
	store := qarttest.NewMemoryStore()

	objects, err := New(store, qlog.Discard()).Upload(context.Background(), out, "s3://b/out/result.mp4")
	require.NoError(t, err)

	require.Len(t, objects, 1)
	assert.Equal(t, Uploaded, objects[0].Outcome)
	assert.Equal(t, []string{"b/out/result.mp4"}, store.Uploads)
	body, ok := store.Object("b", "out/result.mp4")
	require.True(t, ok)
	assert.Equal(t, "encoded", string(body))
}

func TestUpload_ExistingObjectIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	writeFile(t, out, "new")
	store := qarttest.NewMemoryStore()
	store.Seed("b", "out.mp4", []byte("old"))

	objects, err := New(store, qlog.NewLogger(slog.LevelInfo, &buf)).Upload(context.Background(), out, "s3://b/out.mp4")
	require.NoError(t, err)

	assert.Equal(t, Skipped, objects[0].Outcome)
	assert.Empty(t, store.Uploads)
	assert.Equal(t, []string{"b/out.mp4"}, store.Probes)
	body, _ := store.Object("b", "out.mp4")
	assert.Equal(t, "old", string(body))
	assert.Contains(t, buf.String(), "object already exists, skipping")
}

func TestUpload_DirectorySync(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a/b.mp4"), "b")
	writeFile(t, filepath.Join(root, "a/c.mp4"), "c")
	store := qarttest.NewMemoryStore()

	objects, err := New(store, qlog.Discard()).Upload(context.Background(),
		filepath.Join(root, "a/%d.mp4"), "s3://bucket/x/%d.mp4")
	require.NoError(t, err)

	assert.Len(t, objects, 2)
	assert.ElementsMatch(t, []string{"bucket/x/b.mp4", "bucket/x/c.mp4"}, store.Uploads)
}

func TestUpload_DirectorySyncKeepsSubdirectories(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "hls/%03d.ts")
	writeFile(t, filepath.Join(root, "hls/000.ts"), "0")
	writeFile(t, filepath.Join(root, "hls/480p/000.ts"), "0")
	store := qarttest.NewMemoryStore()
	store.Seed("b", "vod/hls/000.ts", []byte("0"))

	objects, err := New(store, qlog.Discard()).Upload(context.Background(), out, "s3://b/vod/hls/%03d.ts")
	require.NoError(t, err)

	assert.Len(t, objects, 2)
	assert.Equal(t, []string{"b/vod/hls/480p/000.ts"}, store.Uploads)
	assert.ElementsMatch(t, []string{"b/vod/hls/000.ts", "b/vod/hls/480p/000.ts"}, store.Probes)
}

func TestUpload_ProbeErrorStillUploads(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	writeFile(t, out, "x")
	store := &probeFailStore{MemoryStore: qarttest.NewMemoryStore()}

	objects, err := New(store, qlog.Discard()).Upload(context.Background(), out, "s3://b/out.mp4")
	require.NoError(t, err)
	assert.Equal(t, Uploaded, objects[0].Outcome)
	assert.Equal(t, []string{"b/out.mp4"}, store.Uploads)
}

func TestUpload_FailureIsUploadingError(t *testing.T) {
	var buf bytes.Buffer
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	writeFile(t, out, "x")
	store := qarttest.NewMemoryStore()
	store.Fail["b/out.mp4"] = errors.New("AccessDenied")

	_, err := New(store, qlog.NewLogger(slog.LevelInfo, &buf)).Upload(context.Background(), out, "s3://b/out.mp4")
	require.Error(t, err)
	assert.True(t, qerr.IsCode(err, qerr.CodeUploading))
	assert.Contains(t, err.Error(), "bucket b key out.mp4")
	assert.Contains(t, buf.String(), "bucket=b, key=out.mp4")
}

func TestUpload_MissingLocalFile(t *testing.T) {
	store := qarttest.NewMemoryStore()

	_, err := New(store, qlog.Discard()).Upload(context.Background(), filepath.Join(t.TempDir(), "none.mp4"), "s3://b/out.mp4")
	assert.True(t, qerr.IsCode(err, qerr.CodeUploading))
}

type probeFailStore struct {
	*qarttest.MemoryStore
}

func (s *probeFailStore) Exists(ctx context.Context, loc qart.Location) (bool, error) {
	return false, errors.New("Forbidden")
}
