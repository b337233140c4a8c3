package qrunner

import (
	"context"
	"time"
)

// Result describes a finished engine run. Output holds the engine's log
// lines with progress fields removed.
type Result struct {
	Command    []string  `json:"command"`
	ExitCode   int       `json:"exit_code"`
	Output     string    `json:"-"`
	DurationMs int64     `json:"duration_ms,omitempty"` // media duration parsed from the engine log
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Elapsed is the wall-clock time the engine ran for.
func (r *Result) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProgressSink receives fractions in [0,1] while the engine runs.
type ProgressSink interface {
	Publish(ctx context.Context, fraction float64)
}

// Runner executes one engine invocation to completion.
type Runner interface {
	// Run blocks until the process exits. A non-zero exit returns both the
	// result and an error.
	Run(ctx context.Context, tokens []string, sink ProgressSink) (*Result, error)
}
