package qrunner

import "testing"

func TestIsProgressLine(t *testing.T) {
	for _, line := range []string{
		"out_time=00:00:01.000000",
		"frame=120",
		"fps=29.97",
		"bitrate=1024.0kbits/s",
		"speed=2.01x",
		"progress=continue",
		"out_time_ms=1000000",
		"stream_0_0_q=28.0",
	} {
		if !IsProgressLine(line) {
			t.Errorf("expected %q to be a progress line", line)
		}
	}
	for _, line := range []string{
		"  Duration: 00:01:02.50, start: 0.000000, bitrate: 1205 kb/s",
		"Stream #0:0: Video: h264",
		"  frame=  120 fps= 30",
	} {
		if IsProgressLine(line) {
			t.Errorf("expected %q not to be a progress line", line)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		line string
		ms   int64
		ok   bool
	}{
		{"  Duration: 00:01:02.50, start: 0.000000", 62500, true},
		{"Duration: 01:00:00.01", 3600010, true},
		{"Duration: N/A, bitrate: N/A", 0, false},
	}
	for _, tc := range cases {
		ms, ok := ParseDuration(tc.line)
		if ok != tc.ok || ms != tc.ms {
			t.Errorf("ParseDuration(%q) = %d, %v; want %d, %v", tc.line, ms, ok, tc.ms, tc.ok)
		}
	}
}

func TestParseProgress(t *testing.T) {
	n, ok := ParseProgress("out_time_ms=25000")
	if !ok || n != 25000 {
		t.Errorf("expected 25000, got %d (ok=%v)", n, ok)
	}
	if _, ok := ParseProgress("out_time=00:00:25.000000"); ok {
		t.Error("out_time is not an out_time_ms field")
	}
}

func TestFraction(t *testing.T) {
	cases := []struct {
		progress, duration int64
		want               float64
	}{
		{25000, 100000, 0.25},
		{1, 3, 0.333},
		{2, 3, 0.667},
		{150000, 100000, 1},
		{-5, 100000, 0},
		{25000, 0, 0},
	}
	for _, tc := range cases {
		if got := Fraction(tc.progress, tc.duration); got != tc.want {
			t.Errorf("Fraction(%d, %d) = %v, want %v", tc.progress, tc.duration, got, tc.want)
		}
	}
}

func TestParser_FirstDurationWins(t *testing.T) {
	var p Parser

	if _, ok := p.Feed("out_time_ms=1000"); ok {
		t.Error("no progress before a duration is known")
	}

	p.Feed("  Duration: 00:01:40.00, start: 0.000000")
	p.Feed("  Duration: 00:00:10.00, start: 0.000000")

	if d, ok := p.Duration(); !ok || d != 100000 {
		t.Fatalf("expected duration 100000, got %d (ok=%v)", d, ok)
	}
	if f, ok := p.Feed("out_time_ms=25000"); !ok || f != 0.25 {
		t.Errorf("expected 0.25, got %v (ok=%v)", f, ok)
	}
	if f, ok := p.Feed("out_time_ms=250000"); !ok || f != 1 {
		t.Errorf("expected 1, got %v (ok=%v)", f, ok)
	}
}
