package qrunner

import (
	"fmt"

	"github.com/kballard/go-shellquote"
)

const (
	// DefaultEngine is used when BuildOptions.Engine is empty.
	DefaultEngine = "ffmpeg"
	// ProgressPipe makes the engine write key=value progress to stdout.
	ProgressPipe = "pipe:1"

	inputMarker = "-i"
)

// BuildOptions carries everything needed to build an engine invocation.
// Option strings are split with shell quoting rules; empty means none.
type BuildOptions struct {
	Engine         string
	ProgressTarget string

	GlobalOptions     string
	InputFileOptions  string
	Inputs            []string
	OutputFileOptions string
	Output            string
}

// Build turns opts into an argv. Input-file options are repeated before
// every input. It has no side effects.
func Build(opts BuildOptions) ([]string, error) {
	engine := opts.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	tokens := []string{engine}

	if opts.ProgressTarget != "" {
		tokens = append(tokens, "-progress", opts.ProgressTarget)
	}

	global, err := split("global options", opts.GlobalOptions)
	if err != nil {
		return nil, err
	}
	tokens = append(tokens, global...)

	inputOpts, err := split("input file options", opts.InputFileOptions)
	if err != nil {
		return nil, err
	}
	for _, input := range opts.Inputs {
		tokens = append(tokens, inputOpts...)
		tokens = append(tokens, inputMarker, input)
	}

	outputOpts, err := split("output file options", opts.OutputFileOptions)
	if err != nil {
		return nil, err
	}
	tokens = append(tokens, outputOpts...)

	if opts.Output != "" {
		tokens = append(tokens, opts.Output)
	}
	return tokens, nil
}

func split(what, s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return words, nil
}
