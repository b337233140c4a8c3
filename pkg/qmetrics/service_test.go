package qmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qart/qarttest"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
	err   error
}

func (f *fakeCalculator) Calculate(ctx context.Context, reference, distorted string) (*Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	frames := map[string][]Frame{VMAF: {{"n": 1, "vmaf": 90}, {"n": 2, "vmaf": 100}}}
	return &Document{
		Reference: reference,
		Distorted: distorted,
		Frames:    frames,
		Global:    Summarize(frames),
	}, nil
}

type fakeRecorder struct {
	locs []qart.Location
	err  error
}

func (f *fakeRecorder) Record(ctx context.Context, loc qart.Location, doc *Document) error {
	f.locs = append(f.locs, loc)
	return f.err
}

func testEnv() *config.Env {
	return &config.Env{
		JobID:              "job-1",
		JobQueue:           "queue",
		ComputeEnvironment: "ce",
		Bucket:             "media",
		MetricsParameter:   "/batch-ffmpeg/ffqm",
	}
}

var fixedNow = func() time.Time { return time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC) }

func eligibleJob() Job {
	return Job{
		InputURLs: []string{"s3://media/in.mp4"},
		Inputs:    []string{"/w/in.mp4"},
		Output:    "/w/out.mp4",
		OutputURL: "s3://media/out.mp4",
	}
}

func TestService_PersistsDocument(t *testing.T) {
	store := qarttest.NewMemoryStore()
	calc := &fakeCalculator{}
	rec := &fakeRecorder{}
	svc := NewService(testEnv(), flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, store, calc, qlog.Discard(),
		WithClock(fixedNow), WithRecorder(rec))

	loc, err := svc.Run(context.Background(), eligibleJob())
	require.NoError(t, err)
	require.NotNil(t, loc)

	key := "metrics/ffqm/year=2025/month=Jan/day=02/queue_ce_job-1.json"
	assert.Equal(t, key, loc.Key)
	assert.Equal(t, []string{"media/" + key}, store.Puts)
	assert.Len(t, rec.locs, 1)

	body, ok := store.Object("media", key)
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "job-1", doc["AWS_BATCH_JOB_ID"])
	assert.Equal(t, "queue", doc["AWS_BATCH_JQ_NAME"])
	assert.Equal(t, "ce", doc["AWS_BATCH_CE_NAME"])
	assert.Contains(t, doc, "vmaf")
	assert.Contains(t, doc, "global")
}

func TestService_OverwritesExistingDocument(t *testing.T) {
	store := qarttest.NewMemoryStore()
	key := "metrics/ffqm/year=2025/month=Jan/day=02/queue_ce_job-1.json"
	store.Seed("media", key, []byte(`{"stale":true}`))
	svc := NewService(testEnv(), flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, store, &fakeCalculator{}, qlog.Discard(),
		WithClock(fixedNow))

	_, err := svc.Run(context.Background(), eligibleJob())
	require.NoError(t, err)

	body, _ := store.Object("media", key)
	assert.NotContains(t, string(body), "stale")
}

func TestService_NotEligible(t *testing.T) {
	cases := map[string]struct {
		flags flagStore
		job   Job
	}{
		"flag disabled":  {flagStore{"/batch-ffmpeg/ffqm": "FALSE"}, eligibleJob()},
		"flag missing":   {flagStore{}, eligibleJob()},
		"flag lowercase": {flagStore{"/batch-ffmpeg/ffqm": "true"}, eligibleJob()},
		"audio output": {flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, Job{
			InputURLs: []string{"s3://media/in.mp4"}, Inputs: []string{"/w/in.mp4"},
			Output: "/w/out.mp3", OutputURL: "s3://media/out.mp3",
		}},
		"two inputs": {flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, Job{
			InputURLs: []string{"s3://media/a.mp4", "s3://media/b.mp4"}, Inputs: []string{"/w/a.mp4", "/w/b.mp4"},
			Output: "/w/out.mp4", OutputURL: "s3://media/out.mp4",
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := qarttest.NewMemoryStore()
			calc := &fakeCalculator{}
			svc := NewService(testEnv(), tc.flags, store, calc, qlog.Discard())

			loc, err := svc.Run(context.Background(), tc.job)
			assert.NoError(t, err)
			assert.Nil(t, loc)
			assert.Zero(t, calc.calls)
			assert.Empty(t, store.Puts)
		})
	}
}

func TestService_CalculatorFailure(t *testing.T) {
	store := qarttest.NewMemoryStore()
	svc := NewService(testEnv(), flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, store,
		&fakeCalculator{err: errors.New("libvmaf missing")}, qlog.Discard())

	_, err := svc.Run(context.Background(), eligibleJob())
	assert.ErrorContains(t, err, "libvmaf missing")
	assert.Empty(t, store.Puts)
}

func TestService_RecorderFailureIsIgnored(t *testing.T) {
	store := qarttest.NewMemoryStore()
	svc := NewService(testEnv(), flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, store, &fakeCalculator{}, qlog.Discard(),
		WithRecorder(&fakeRecorder{err: errors.New("connection refused")}))

	loc, err := svc.Run(context.Background(), eligibleJob())
	assert.NoError(t, err)
	assert.NotNil(t, loc)
}

func TestService_NoBucket(t *testing.T) {
	env := testEnv()
	env.Bucket = ""
	svc := NewService(env, flagStore{"/batch-ffmpeg/ffqm": "TRUE"}, qarttest.NewMemoryStore(), &fakeCalculator{}, qlog.Discard())

	_, err := svc.Run(context.Background(), eligibleJob())
	assert.ErrorIs(t, err, ErrNoBucket)
}
