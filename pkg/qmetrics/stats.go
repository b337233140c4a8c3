package qmetrics

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summarize computes Stats for every component of every metric. The frame
// number is not a component.
func Summarize(frames map[string][]Frame) map[string]map[string]Stats {
	global := make(map[string]map[string]Stats, len(frames))
	for metric, list := range frames {
		columns := make(map[string][]float64)
		for _, f := range list {
			for component, v := range f {
				if component == "n" {
					continue
				}
				columns[component] = append(columns[component], v)
			}
		}
		if len(columns) == 0 {
			continue
		}
		stats := make(map[string]Stats, len(columns))
		for component, values := range columns {
			stats[component] = summarize(values)
		}
		global[metric] = stats
	}
	return global
}

func summarize(values []float64) Stats {
	return Stats{
		Average: round3(stat.Mean(values, nil)),
		Median:  round3(median(values)),
		Stdev:   round3(stat.PopStdDev(values, nil)),
		Min:     round3(floats.Min(values)),
		Max:     round3(floats.Max(values)),
	}
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
