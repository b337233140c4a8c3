package qmetrics

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/quatton/batchffmpeg/pkg/qlog"
	"github.com/quatton/batchffmpeg/pkg/qrunner"
)

// Stats files written by the engine into the calculator's work directory.
const (
	ssimLog = "ssim.log"
	psnrLog = "psnr.log"
	vmafLog = "vmaf.json"
)

// Calculator compares a distorted file against its reference.
type Calculator interface {
	Calculate(ctx context.Context, reference, distorted string) (*Document, error)
}

// FFmpegCalculator runs the engine's ssim, psnr and libvmaf filters in one
// pass and reads back their per-frame logs.
type FFmpegCalculator struct {
	Binary  string
	Metrics []string
	log     *qlog.Logger
}

func NewFFmpegCalculator(binary string, log *qlog.Logger) *FFmpegCalculator {
	if binary == "" {
		binary = qrunner.DefaultEngine
	}
	return &FFmpegCalculator{
		Binary:  binary,
		Metrics: DefaultMetrics,
		log:     log,
	}
}

func (c *FFmpegCalculator) Calculate(ctx context.Context, reference, distorted string) (*Document, error) {
	dir, err := os.MkdirTemp("", "ffqm_")
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	defer os.RemoveAll(dir)

	tokens := c.command(reference, distorted)
	runner := qrunner.NewLocalRunner(c.log, qrunner.WithWorkingDir(dir))
	if _, err := runner.Run(ctx, tokens, nil); err != nil {
		return nil, fmt.Errorf("metrics pass failed: %w", err)
	}

	doc := &Document{
		Reference: reference,
		Distorted: distorted,
		Frames:    make(map[string][]Frame, len(c.Metrics)),
	}
	for _, metric := range c.Metrics {
		frames, err := readFrames(dir, metric)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s results: %w", metric, err)
		}
		doc.Frames[metric] = frames
	}
	doc.Global = Summarize(doc.Frames)
	return doc, nil
}

// command scales the distorted stream to the reference resolution, aligns
// timestamps and fans both streams out to one filter per metric.
func (c *FFmpegCalculator) command(reference, distorted string) []string {
	n := len(c.Metrics)
	var graph strings.Builder
	fmt.Fprintf(&graph, "[0:v][1:v]scale2ref=flags=bicubic[dist][ref];")
	fmt.Fprintf(&graph, "[dist]setpts=PTS-STARTPTS,split=%d", n)
	for i := range n {
		fmt.Fprintf(&graph, "[d%d]", i)
	}
	fmt.Fprintf(&graph, ";[ref]setpts=PTS-STARTPTS,split=%d", n)
	for i := range n {
		fmt.Fprintf(&graph, "[r%d]", i)
	}
	for i, metric := range c.Metrics {
		fmt.Fprintf(&graph, ";[d%d][r%d]%s", i, i, filterFor(metric))
	}

	return []string{
		c.Binary,
		"-nostdin", "-hide_banner", "-nostats",
		"-i", distorted,
		"-i", reference,
		"-filter_complex", graph.String(),
		"-an", "-f", "null", "-",
	}
}

func filterFor(metric string) string {
	switch metric {
	case SSIM:
		return "ssim=stats_file=" + ssimLog
	case PSNR:
		return "psnr=stats_file=" + psnrLog
	case VMAF:
		return "libvmaf=log_fmt=json:log_path=" + vmafLog
	default:
		return "null"
	}
}

func readFrames(dir, metric string) ([]Frame, error) {
	switch metric {
	case SSIM:
		f, err := os.Open(filepath.Join(dir, ssimLog))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseStatsLog(f, ssimComponent)
	case PSNR:
		f, err := os.Open(filepath.Join(dir, psnrLog))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseStatsLog(f, nil)
	case VMAF:
		f, err := os.Open(filepath.Join(dir, vmafLog))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseVMAFLog(f)
	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
}

var ssimNames = map[string]string{
	"Y":   "ssim_y",
	"U":   "ssim_u",
	"V":   "ssim_v",
	"All": "ssim_avg",
}

func ssimComponent(name string) string {
	if mapped, ok := ssimNames[name]; ok {
		return mapped
	}
	return ""
}

// ParseStatsLog reads a "key:value key:value ..." stats file, one frame per
// line. rename maps a raw key to its document name; "" drops the key. Tokens
// without a colon and non-finite values are skipped.
func ParseStatsLog(r io.Reader, rename func(string) string) ([]Frame, error) {
	var frames []Frame
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		frame := Frame{}
		for _, field := range strings.Fields(line) {
			key, raw, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
				continue
			}
			if key != "n" && rename != nil {
				key = rename(key)
				if key == "" {
					continue
				}
			}
			frame[key] = v
		}
		frames = append(frames, frame)
	}
	return frames, sc.Err()
}

type vmafLogFile struct {
	Frames []struct {
		FrameNum int                `json:"frameNum"`
		Metrics  map[string]float64 `json:"metrics"`
	} `json:"frames"`
}

// ParseVMAFLog reads libvmaf's JSON log.
func ParseVMAFLog(r io.Reader) ([]Frame, error) {
	var parsed vmafLogFile
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode vmaf log: %w", err)
	}
	frames := make([]Frame, 0, len(parsed.Frames))
	for _, f := range parsed.Frames {
		frame := Frame{"n": float64(f.FrameNum + 1)}
		for k, v := range f.Metrics {
			frame[k] = v
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Ensure FFmpegCalculator implements Calculator.
var _ Calculator = (*FFmpegCalculator)(nil)
