// Package wrapper runs one transcoding job end to end: stage inputs, run
// the engine, upload results, then compute quality metrics. The returned
// error decides the process exit code.
package wrapper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/quatton/batchffmpeg/pkg/config"
	"github.com/quatton/batchffmpeg/pkg/kv"
	"github.com/quatton/batchffmpeg/pkg/params"
	"github.com/quatton/batchffmpeg/pkg/progress"
	"github.com/quatton/batchffmpeg/pkg/qart"
	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/quatton/batchffmpeg/pkg/qmetrics"
	"github.com/quatton/batchffmpeg/pkg/qrunner"
	"github.com/quatton/batchffmpeg/pkg/qtrace"
	"github.com/quatton/batchffmpeg/pkg/stage"
	"github.com/quatton/batchffmpeg/pkg/upload"
)

// State is a step of the job lifecycle.
type State string

const (
	StateStart       State = "START"
	StateStaging     State = "STAGING"
	StateTranscoding State = "TRANSCODING"
	StateUploading   State = "UPLOADING"
	StateMetrics     State = "METRICS"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Deps are the collaborators a job talks to. Progress, Params and
// Recorder may be nil.
type Deps struct {
	Store      qart.Store
	Params     params.Store
	Progress   kv.Store
	Runner     qrunner.Runner
	Calculator qmetrics.Calculator
	Recorder   qmetrics.Recorder
}

// Wrapper supervises a single job.
type Wrapper struct {
	env   *config.Env
	deps  Deps
	log   *qlog.Logger
	state State
}

func New(env *config.Env, deps Deps, log *qlog.Logger) *Wrapper {
	if deps.Progress == nil {
		deps.Progress = kv.NoopStore{}
	}
	return &Wrapper{env: env, deps: deps, log: log, state: StateStart}
}

// State returns the last state the job reached.
func (w *Wrapper) State() State {
	return w.state
}

func (w *Wrapper) enter(s State) {
	w.log.Debug("state transition", "from", w.state, "to", s)
	w.state = s
}

// ExitCode maps a Run result to the process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

// Run executes the job. Staging, transcoding and uploading failures are
// returned; metrics failures are only logged.
func (w *Wrapper) Run(ctx context.Context, p *config.Params) (err error) {
	w.log.Info("job parameters", p.Fields()...)
	w.log.Info("job environment", w.env.Fields()...)
	w.log.Info("shared filesystem enabled", "enabled", w.env.SharedFilesystem())

	execution, uerr := uuid.NewV7()
	if uerr != nil {
		return fmt.Errorf("failed to generate execution id: %w", uerr)
	}
	fields := append([]any{
		"application", qtrace.ServiceName,
		"execution", "ffmpeg-wrapper-" + execution.String(),
	}, p.Fields()...)
	for k, v := range w.env.Identity() {
		fields = append(fields, k, v)
	}
	ctx, span := qtrace.Start(ctx, w.log, "batch-ffmpeg-job", fields...)
	defer func() {
		if err != nil {
			w.enter(StateFailed)
		}
		span.End(err)
	}()

	w.enter(StateStaging)
	assets, err := w.stage(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := assets.Cleanup(); cerr != nil {
			w.log.Warn("failed to remove work directory", "error", cerr)
		}
	}()

	w.enter(StateTranscoding)
	if err := w.transcode(ctx, p, assets); err != nil {
		return err
	}

	if !w.env.SharedFilesystem() && p.OutputURL != "" {
		w.enter(StateUploading)
		if err := w.upload(ctx, p, assets); err != nil {
			return err
		}
	}

	w.enter(StateMetrics)
	w.metrics(ctx, p, assets)

	w.enter(StateDone)
	return nil
}

func (w *Wrapper) stage(ctx context.Context, p *config.Params) (_ *stage.Assets, err error) {
	inputs := p.Inputs()
	ctx, span := qtrace.Start(ctx, w.log, "staging", "inputs", len(inputs))
	defer func() { span.End(err) }()

	return stage.New(w.deps.Store, w.log.With("stage", "staging")).Stage(ctx, stage.Request{
		Inputs:     inputs,
		OutputURL:  p.OutputURL,
		MountPoint: w.env.MountPoint,
	})
}

func (w *Wrapper) transcode(ctx context.Context, p *config.Params, assets *stage.Assets) (err error) {
	log := w.log.With("stage", "transcoding")

	if w.env.OnNvidiaQueue() {
		if err := qrunner.CheckGPU(ctx, w.env.NvidiaSMIBinary, log); err != nil {
			return err
		}
	}

	tokens, err := qrunner.Build(qrunner.BuildOptions{
		Engine:            w.env.FFmpegBinary,
		ProgressTarget:    qrunner.ProgressPipe,
		GlobalOptions:     p.GlobalOptions,
		InputFileOptions:  p.InputFileOptions,
		Inputs:            assets.Inputs,
		OutputFileOptions: p.OutputFileOptions,
		Output:            assets.Output,
	})
	if err != nil {
		return qerr.New(qerr.CodeTranscoding, err)
	}

	ctx, span := qtrace.Start(ctx, log, "cmd-execution")
	defer func() { span.End(err) }()

	name := p.Name
	if name == "" {
		name = w.env.JobID
	}
	publisher := progress.NewPublisher(w.deps.Progress, name, log)

	result, err := w.deps.Runner.Run(ctx, tokens, publisher)
	if result != nil {
		span.Set("exit_code", result.ExitCode, "duration_ms", result.DurationMs)
	}
	return err
}

func (w *Wrapper) upload(ctx context.Context, p *config.Params, assets *stage.Assets) (err error) {
	ctx, span := qtrace.Start(ctx, w.log, "upload", "output_url", p.OutputURL)
	defer func() { span.End(err) }()

	objects, err := upload.New(w.deps.Store, w.log.With("stage", "uploading")).Upload(ctx, assets.Output, p.OutputURL)
	span.Set("objects", len(objects))
	return err
}

// metrics never fails the job.
func (w *Wrapper) metrics(ctx context.Context, p *config.Params, assets *stage.Assets) {
	log := w.log.With("stage", "metrics")
	if w.deps.Calculator == nil {
		log.Warn("no quality metrics calculator configured")
		return
	}

	var err error
	ctx, span := qtrace.Start(ctx, log, "quality-metrics")
	defer func() { span.End(err) }()

	var opts []qmetrics.Option
	if w.deps.Recorder != nil {
		opts = append(opts, qmetrics.WithRecorder(w.deps.Recorder))
	}
	svc := qmetrics.NewService(w.env, w.deps.Params, w.deps.Store, w.deps.Calculator, log, opts...)

	loc, err := svc.Run(ctx, qmetrics.Job{
		InputURLs: p.Inputs(),
		Inputs:    assets.Inputs,
		Output:    assets.Output,
		OutputURL: p.OutputURL,
	})
	if err != nil {
		log.Error("quality metrics error", "error", err)
		return
	}
	if loc != nil {
		span.Set("document", loc.String())
	}
}
