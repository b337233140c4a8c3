package qmetrics

import (
	"fmt"
	"strings"

	"github.com/quatton/batchffmpeg/pkg/params"
)

// ExcludedMarkers disqualify an output URL from metrics: sequence patterns
// and audio-only containers have no single video to compare.
var ExcludedMarkers = []string{"%", ".m4a", ".mp3"}

// Eligible reports whether metrics should run for a job, and why not.
// enabled is the state of the metrics parameter.
func Eligible(enabled bool, inputs int, outputURL string) (bool, string) {
	if !enabled {
		return false, fmt.Sprintf("metrics parameter is not %s", params.Enabled)
	}
	if inputs != 1 {
		return false, fmt.Sprintf("job has %d inputs, need exactly 1", inputs)
	}
	for _, marker := range ExcludedMarkers {
		if strings.Contains(outputURL, marker) {
			return false, fmt.Sprintf("output url contains %q", marker)
		}
	}
	return true, ""
}
