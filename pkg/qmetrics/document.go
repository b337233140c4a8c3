// Package qmetrics computes video quality metrics (SSIM, PSNR, VMAF) for a
// finished transcode and persists them as one JSON document per job.
package qmetrics

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Metric names as they appear in the document.
const (
	SSIM = "ssim"
	PSNR = "psnr"
	VMAF = "vmaf"
)

// DefaultMetrics is computed when a calculator is not told otherwise.
var DefaultMetrics = []string{SSIM, PSNR, VMAF}

// KeyPrefix is where metrics documents live in the bucket.
const KeyPrefix = "metrics/ffqm"

// Frame holds one frame's values for a metric, keyed by component name
// ("ssim_y", "psnr_avg", "vmaf", ...). "n" is the 1-based frame number.
type Frame map[string]float64

// Stats aggregates one component over all frames.
type Stats struct {
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	Stdev   float64 `json:"stdev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Document is the persisted result for one job.
type Document struct {
	Reference string
	Distorted string
	// CreatedAt also determines the date partition of the document key.
	CreatedAt time.Time
	// Frames maps a metric name to its per-frame values.
	Frames map[string][]Frame
	// Global maps a metric name to per-component statistics.
	Global map[string]map[string]Stats
	// Identity fields are written as top-level keys.
	Identity map[string]string
}

// MarshalJSON flattens the document into a single object: one array per
// metric, a "global" object and the identity fields.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Frames)+len(d.Identity)+3)
	for metric, frames := range d.Frames {
		out[metric] = frames
	}
	out["global"] = d.Global
	out["input_file_ref"] = d.Reference
	out["input_file_dist"] = d.Distorted
	if !d.CreatedAt.IsZero() {
		out["created_at"] = d.CreatedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range d.Identity {
		out[k] = v
	}
	return json.Marshal(out)
}

// WithIdentity returns a copy of d carrying the given identity fields,
// overriding any already present.
func (d *Document) WithIdentity(identity map[string]string) *Document {
	cp := *d
	cp.Identity = make(map[string]string, len(d.Identity)+len(identity))
	maps.Copy(cp.Identity, d.Identity)
	maps.Copy(cp.Identity, identity)
	return &cp
}

// Key builds the date-partitioned object key for a job's document.
// Example: metrics/ffqm/year=2024/month=Mar/day=07/queue_ce_jobid.json
func Key(at time.Time, queue, computeEnv, jobID string) string {
	at = at.UTC()
	return fmt.Sprintf("%s/year=%s/month=%s/day=%s/%s_%s_%s.json",
		KeyPrefix,
		at.Format("2006"), at.Format("Jan"), at.Format("02"),
		queue, computeEnv, jobID,
	)
}
