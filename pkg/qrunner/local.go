package qrunner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

// maxLineSize bounds a single engine log line.
const maxLineSize = 1024 * 1024

// LocalRunner runs the engine as a child process of the wrapper and
// supervises it synchronously.
type LocalRunner struct {
	workingDir string
	env        map[string]string
	log        *qlog.Logger
}

// LocalRunnerOption configures a LocalRunner
type LocalRunnerOption func(*LocalRunner)

// WithWorkingDir sets the child's working directory
func WithWorkingDir(dir string) LocalRunnerOption {
	return func(r *LocalRunner) {
		r.workingDir = dir
	}
}

// WithEnv adds variables to the child's environment
func WithEnv(env map[string]string) LocalRunnerOption {
	return func(r *LocalRunner) {
		r.env = env
	}
}

func NewLocalRunner(log *qlog.Logger, opts ...LocalRunnerOption) *LocalRunner {
	r := &LocalRunner{log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts tokens[0] with the remaining tokens as arguments. Standard
// output and standard error share one pipe, so lines are read in the order
// the engine wrote them. Every line is parsed for duration and progress;
// lines that are not progress fields are logged and kept in Result.Output,
// which is logged in full if the process fails.
func (r *LocalRunner) Run(ctx context.Context, tokens []string, sink ProgressSink) (*Result, error) {
	if len(tokens) == 0 {
		return nil, qerr.Newf(qerr.CodeTranscoding, "empty command")
	}
	engine := filepath.Base(tokens[0])
	engineLog := r.log.With("source", engine)

	cmd := exec.CommandContext(ctx, tokens[0], tokens[1:]...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}
	if len(r.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, qerr.New(qerr.CodeTranscoding, fmt.Errorf("failed to open output pipe: %w", err))
	}
	defer pr.Close()
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.log.Info("command to launch", "command", strings.Join(tokens, " "))
	result := &Result{Command: tokens, StartedAt: time.Now()}
	err = cmd.Start()
	// The child holds its own copy; ours must go for the read to see EOF.
	pw.Close()
	if err != nil {
		result.FinishedAt = time.Now()
		result.ExitCode = -1
		return result, qerr.New(qerr.CodeTranscoding, fmt.Errorf("failed to start %s: %w", engine, err))
	}

	var (
		parser Parser
		output strings.Builder
	)
	r.scan(pr, func(line string) {
		if !IsProgressLine(line) {
			engineLog.Info(line)
			output.WriteString(line)
			output.WriteByte('\n')
		}
		if fraction, ok := parser.Feed(line); ok && sink != nil {
			sink.Publish(ctx, fraction)
		}
	})

	err = cmd.Wait()
	result.FinishedAt = time.Now()
	result.Output = output.String()
	result.DurationMs, _ = parser.Duration()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		r.log.Error(engine+" failed", "exit_code", result.ExitCode)
		r.log.Error(engine + " failed - error:\n" + result.Output)
		return result, qerr.New(qerr.CodeTranscoding,
			fmt.Errorf("%s exited with code %d: %w", engine, result.ExitCode, err))
	}

	r.log.Info(engine+" succeeded", "exit_code", 0, "elapsed", result.Elapsed().Round(time.Millisecond))
	return result, nil
}

// scan hands each non-empty line of rd to fn until EOF. If a line is too
// long the rest of the stream is drained so the child never blocks on a
// full pipe.
func (r *LocalRunner) scan(rd io.Reader, fn func(line string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanLines)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fn(text)
	}
	if err := sc.Err(); err != nil {
		r.log.Warn("stopped reading engine output", "error", err)
		io.Copy(io.Discard, rd)
	}
}

// scanLines splits on "\n" or "\r"; the engine rewrites its status line
// in place with carriage returns.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Ensure LocalRunner implements Runner.
var _ Runner = (*LocalRunner)(nil)
