package qrunner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

// CheckGPU runs the GPU status tool and fails if it exits non-zero. Jobs
// on a GPU queue must not fall back to software encoding silently.
func CheckGPU(ctx context.Context, binary string, log *qlog.Logger) error {
	out, err := exec.CommandContext(ctx, binary).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		log.Error("gpu check failed", "binary", binary, "error", err)
		if output != "" {
			log.Error(binary + " output:\n" + output)
		}
		return qerr.New(qerr.CodeTranscoding, fmt.Errorf("gpu check %s: %w", binary, err))
	}
	log.Info("gpu check succeeded", "binary", binary)
	if output != "" {
		log.Info(binary + " output:\n" + output)
	}
	return nil
}
