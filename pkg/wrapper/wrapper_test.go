package wrapper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/qart/qarttest"
	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/quatton/batchffmpeg/pkg/qmetrics"
	"github.com/quatton/batchffmpeg/pkg/qrunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engineScript behaves like a successful transcode: it reports a 10s
// duration, emits progress on stdout and writes the last argument.
const engineScript = `#!/bin/sh
for last; do :; done
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 1205 kb/s" >&2
echo "out_time_ms=5000"
echo "progress=continue"
echo "out_time_ms=10000"
echo "progress=end"
echo "transcoded" > "$last"
`

const failingEngineScript = `#!/bin/sh
echo "[libx264 @ 0x1] height not divisible by 2 (1281x720)" >&2
echo "Error while opening encoder for output stream #0:0" >&2
exit 1
`

type progressCall struct {
	key   string
	value string
}

type fakeKV struct {
	mu    sync.Mutex
	calls []progressCall
}

func (f *fakeKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, progressCall{key, string(value)})
	return nil
}

func (f *fakeKV) Close() error { return nil }

type flagStore map[string]string

func (f flagStore) Get(ctx context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("ParameterNotFound")
	}
	return v, nil
}

type fakeCalculator struct {
	calls int
}

func (f *fakeCalculator) Calculate(ctx context.Context, reference, distorted string) (*qmetrics.Document, error) {
	f.calls++
	frames := map[string][]qmetrics.Frame{qmetrics.SSIM: {{"n": 1, "ssim_avg": 0.99}}}
	return &qmetrics.Document{
		Reference: reference,
		Distorted: distorted,
		Frames:    frames,
		Global:    qmetrics.Summarize(frames),
	}, nil
}

type harness struct {
	env   *config.Env
	store *qarttest.MemoryStore
	kv    *fakeKV
	calc  *fakeCalculator
	logs  *bytes.Buffer
	tmp   string
}

func newHarness(t *testing.T, engine string) *harness {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(engine), 0o755))

	return &harness{
		env: &config.Env{
			JobID:              "job-42",
			JobQueue:           "batch-ffmpeg-job-queue",
			ComputeEnvironment: "ce-intel",
			Bucket:             "b",
			FFmpegBinary:       bin,
			NvidiaSMIBinary:    "nvidia-smi",
			NvidiaQueueName:    "batch-ffmpeg-job-queue-nvidia",
			MetricsParameter:   "/batch-ffmpeg/ffqm",
		},
		store: qarttest.NewMemoryStore(),
		kv:    &fakeKV{},
		calc:  &fakeCalculator{},
		logs:  &bytes.Buffer{},
		tmp:   tmp,
	}
}

func (h *harness) run(t *testing.T, p *config.Params) (*Wrapper, error) {
	t.Helper()
	log := qlog.NewLogger(slog.LevelDebug, h.logs)
	w := New(h.env, Deps{
		Store:      h.store,
		Params:     flagStore{"/batch-ffmpeg/ffqm": "TRUE"},
		Progress:   h.kv,
		Runner:     qrunner.NewLocalRunner(log),
		Calculator: h.calc,
	}, log)
	return w, w.Run(context.Background(), p)
}

func jobParams(input, output string) *config.Params {
	return &config.Params{
		GlobalOptions:     "-y",
		InputURL:          input,
		OutputFileOptions: "-c:v libx264",
		OutputURL:         output,
		Name:              "clip-1",
		Raw: map[string]string{
			config.InputURLKey:  input,
			config.OutputURLKey: output,
			config.NameKey:      "clip-1",
		},
	}
}

func (h *harness) metricsPuts() []string {
	var puts []string
	for _, p := range h.store.Puts {
		if strings.HasPrefix(p, "b/"+qmetrics.KeyPrefix+"/") {
			puts = append(puts, p)
		}
	}
	return puts
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))

	w, err := h.run(t, jobParams("store://b/in.mp4", "store://b/out.mp4"))
	require.NoError(t, err)

	assert.Equal(t, 0, ExitCode(err))
	assert.Equal(t, StateDone, w.State())
	assert.Equal(t, []string{"b/in.mp4"}, h.store.Downloads)
	assert.Equal(t, []string{"b/out.mp4"}, h.store.Uploads)
	body, ok := h.store.Object("b", "out.mp4")
	require.True(t, ok)
	assert.Equal(t, "transcoded\n", string(body))

	assert.Equal(t, 1, h.calc.calls)
	assert.Len(t, h.metricsPuts(), 1)
	assert.Contains(t, h.metricsPuts()[0], "batch-ffmpeg-job-queue_ce-intel_job-42.json")

	assert.Equal(t, []progressCall{
		{"ffmpeg_batch_progress:clip-1", "0.5"},
		{"ffmpeg_batch_progress:clip-1", "1"},
	}, h.kv.calls)

	entries, err := os.ReadDir(h.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory must be removed")
}

func TestRun_ExistingOutputIsSkipped(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))
	h.store.Seed("b", "out.mp4", []byte("previous"))

	_, err := h.run(t, jobParams("store://b/in.mp4", "store://b/out.mp4"))
	require.NoError(t, err)

	assert.Empty(t, h.store.Uploads)
	body, _ := h.store.Object("b", "out.mp4")
	assert.Equal(t, "previous", string(body))
	assert.Contains(t, h.logs.String(), "object already exists, skipping")
	assert.Len(t, h.metricsPuts(), 1)
}

func TestRun_TranscodeFailure(t *testing.T) {
	h := newHarness(t, failingEngineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))

	w, err := h.run(t, jobParams("store://b/in.mp4", "store://b/out.mp4"))
	require.Error(t, err)

	assert.Equal(t, 1, ExitCode(err))
	assert.True(t, qerr.IsCode(err, qerr.CodeTranscoding))
	assert.Equal(t, StateFailed, w.State())
	assert.Contains(t, h.logs.String(), "height not divisible by 2 (1281x720)\nError while opening encoder")
	assert.Empty(t, h.store.Uploads)
	assert.Empty(t, h.store.Puts)
	assert.Zero(t, h.calc.calls)

	entries, err := os.ReadDir(h.tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_StagingFailure(t *testing.T) {
	h := newHarness(t, engineScript)

	_, err := h.run(t, jobParams("store://b/missing.mp4", "store://b/out.mp4"))
	require.Error(t, err)

	assert.True(t, qerr.IsCode(err, qerr.CodeStaging))
	assert.Empty(t, h.store.Uploads)
	assert.Zero(t, h.calc.calls)
}

func TestRun_UploadFailure(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))
	h.store.Fail["b/out.mp4"] = errors.New("AccessDenied")

	_, err := h.run(t, jobParams("store://b/in.mp4", "store://b/out.mp4"))
	require.Error(t, err)

	assert.True(t, qerr.IsCode(err, qerr.CodeUploading))
	assert.Zero(t, h.calc.calls)
}

func TestRun_SharedFilesystem(t *testing.T) {
	h := newHarness(t, engineScript)
	mount := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mount, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mount, "src/in.mp4"), []byte("source"), 0o644))
	h.env.MountPoint = mount

	_, err := h.run(t, jobParams("s3://b/src/in.mp4", "s3://b/dst/out.mp4"))
	require.NoError(t, err)

	assert.Empty(t, h.store.Downloads)
	assert.Empty(t, h.store.Uploads)
	body, err := os.ReadFile(filepath.Join(mount, "dst/out.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "transcoded\n", string(body))
	assert.Len(t, h.metricsPuts(), 1)
}

func TestRun_GPUCheckFailureStopsJob(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))
	smi := filepath.Join(t.TempDir(), "nvidia-smi")
	require.NoError(t, os.WriteFile(smi, []byte("#!/bin/sh\necho 'No devices were found'\nexit 6\n"), 0o755))
	h.env.JobQueue = h.env.NvidiaQueueName
	h.env.NvidiaSMIBinary = smi

	_, err := h.run(t, jobParams("store://b/in.mp4", "store://b/out.mp4"))
	require.Error(t, err)

	assert.True(t, qerr.IsCode(err, qerr.CodeTranscoding))
	assert.Contains(t, h.logs.String(), "No devices were found")
	assert.Empty(t, h.kv.calls)
	assert.Empty(t, h.store.Uploads)
}

func TestRun_MetricsSkippedForSegments(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))

	_, err := h.run(t, jobParams("store://b/in.mp4", "store://b/hls/%03d.ts"))
	require.NoError(t, err)

	assert.Zero(t, h.calc.calls)
	assert.Empty(t, h.metricsPuts())
	assert.Equal(t, []string{"b/hls/%03d.ts"}, h.store.Uploads)
}

func TestRun_ProgressKeyFallsBackToJobID(t *testing.T) {
	h := newHarness(t, engineScript)
	h.store.Seed("b", "in.mp4", []byte("source"))
	p := jobParams("store://b/in.mp4", "store://b/out.mp4")
	p.Name = ""

	_, err := h.run(t, p)
	require.NoError(t, err)

	require.NotEmpty(t, h.kv.calls)
	assert.Equal(t, "ffmpeg_batch_progress:job-42", h.kv.calls[0].key)
}
