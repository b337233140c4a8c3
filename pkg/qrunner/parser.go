package qrunner

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Lines starting with any of these are emitted many times per second by
// the progress pipe and are kept out of the job log.
var progressPrefixes = []string{
	"out_time=",
	"dup_frames=",
	"drop_frames=",
	"speed=",
	"progress=",
	"frame=",
	"fps=",
	"stream_0_0_q=",
	"bitrate=",
	"total_size=",
	"out_time_us=",
	"out_time_ms=",
}

var (
	durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)
	progressRe = regexp.MustCompile(`out_time_ms=(\d+)`)
)

// IsProgressLine reports whether line is a high-frequency progress field.
func IsProgressLine(line string) bool {
	for _, prefix := range progressPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// ParseDuration extracts "Duration: HH:MM:SS.cc" as milliseconds.
func ParseDuration(line string) (int64, bool) {
	m := durationRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	var parts [4]int64
	for i := range parts {
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, false
		}
		parts[i] = n
	}
	hh, mm, ss, cc := parts[0], parts[1], parts[2], parts[3]
	return (hh*3600+mm*60+ss)*1000 + cc*10, true
}

// ParseProgress extracts the out_time_ms offset.
func ParseProgress(line string) (int64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Fraction is progress/duration clamped to [0,1] and rounded to three
// decimals. A non-positive duration yields 0.
func Fraction(progress, duration int64) float64 {
	if duration <= 0 {
		return 0
	}
	f := float64(progress) / float64(duration)
	f = math.Max(0, math.Min(1, f))
	return math.Round(f*1000) / 1000
}

// Parser tracks the media duration across the lines of one run. The first
// duration seen wins; later ones are ignored.
type Parser struct {
	durationMs  int64
	hasDuration bool
}

// Feed inspects one line and returns a progress fraction when the line
// carries an offset and the duration is already known.
func (p *Parser) Feed(line string) (float64, bool) {
	if !p.hasDuration {
		if d, ok := ParseDuration(line); ok {
			p.durationMs = d
			p.hasDuration = true
			return 0, false
		}
	}
	if !p.hasDuration {
		return 0, false
	}
	offset, ok := ParseProgress(line)
	if !ok {
		return 0, false
	}
	return Fraction(offset, p.durationMs), true
}

// Duration returns the recorded duration, if any.
func (p *Parser) Duration() (int64, bool) {
	return p.durationMs, p.hasDuration
}
