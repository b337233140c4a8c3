package cmd

import (
	"fmt"
	"os"

	"github.com/quatton/batchffmpeg/pkg/qerr"
	"github.com/quatton/batchffmpeg/pkg/wrapper"
)

// exitWithError prints a one-line summary naming the failed stage and
// exits with the wrapper's exit code.
func exitWithError(err error) {
	switch {
	case qerr.IsCode(err, qerr.CodeNotFound):
		fmt.Fprintf(os.Stderr, "job failed: input not found (%v)\n", err)
	case qerr.IsCode(err, qerr.CodeStaging):
		fmt.Fprintf(os.Stderr, "job failed while staging inputs (%v)\n", err)
	case qerr.IsCode(err, qerr.CodeTranscoding):
		fmt.Fprintf(os.Stderr, "job failed while transcoding (%v)\n", err)
	case qerr.IsCode(err, qerr.CodeUploading):
		fmt.Fprintf(os.Stderr, "job failed while uploading results (%v)\n", err)
	default:
		fmt.Fprintf(os.Stderr, "job failed: %v\n", err)
	}
	os.Exit(wrapper.ExitCode(err))
}
