package qmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/params"
	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

// ErrNoBucket is returned when there is nowhere to persist the document.
var ErrNoBucket = errors.New("no metrics bucket configured")

// Recorder keeps a secondary record of persisted documents.
type Recorder interface {
	Record(ctx context.Context, loc qart.Location, doc *Document) error
}

// Job is what the service needs to know about a finished transcode.
type Job struct {
	InputURLs []string
	Inputs    []string
	Output    string
	OutputURL string
}

// Service gates, computes and persists quality metrics.
type Service struct {
	env        *config.Env
	params     params.Store
	store      qart.Store
	calculator Calculator
	recorder   Recorder
	now        func() time.Time
	log        *qlog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRecorder adds a catalog that is updated after the document is stored
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithClock overrides the time used for the document key
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(env *config.Env, ps params.Store, store qart.Store, calc Calculator, log *qlog.Logger, opts ...Option) *Service {
	s := &Service{
		env:        env,
		params:     ps,
		store:      store,
		calculator: calc,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run computes and stores metrics if the job is eligible. A nil location
// with a nil error means the job was not eligible.
func (s *Service) Run(ctx context.Context, job Job) (*qart.Location, error) {
	enabled := params.IsEnabled(ctx, s.params, s.env.MetricsParameter, s.log)
	ok, reason := Eligible(enabled, len(job.InputURLs), job.OutputURL)
	if !ok {
		s.log.Warn("quality metrics not computed", "reason", reason)
		return nil, nil
	}
	if len(job.Inputs) != 1 {
		return nil, fmt.Errorf("expected 1 staged input, got %d", len(job.Inputs))
	}
	if s.env.Bucket == "" {
		return nil, ErrNoBucket
	}

	s.log.Info("computing quality metrics", "source", job.Inputs[0], "destination", job.Output)
	doc, err := s.calculator.Calculate(ctx, job.Inputs[0], job.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to compute metrics: %w", err)
	}
	doc = doc.WithIdentity(s.env.Identity())
	doc.CreatedAt = s.now().UTC()

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}

	loc := qart.Location{
		Scheme: "s3",
		Bucket: s.env.Bucket,
		Key:    Key(doc.CreatedAt, s.env.JobQueue, s.env.ComputeEnvironment, s.env.JobID),
	}
	s.log.Info("saving quality metrics", "bucket", loc.Bucket, "key", loc.Key)
	if err := s.store.Put(ctx, loc, body, "application/json"); err != nil {
		return nil, fmt.Errorf("failed to store metrics: %w", err)
	}

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, loc, doc); err != nil {
			s.log.Error("failed to record metrics in catalog", "key", loc.Key, "error", err)
		}
	}
	return &loc, nil
}
