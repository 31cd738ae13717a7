package scout

import (
	"math"
	"sort"

	"peerscout/internal/filter"
)

// Summary is a latency snapshot over a run's qualifying peers.
type Summary struct {
	Count int
	MinMs float64
	MaxMs float64
	AvgMs float64
	P95Ms float64
}

// Summarize computes the latency spread of ranked results.
func Summarize(items []filter.Result) Summary {
	if len(items) == 0 {
		return Summary{Count: 0}
	}

	values := make([]float64, 0, len(items))
	var sum float64
	minMs := math.MaxFloat64
	maxMs := 0.0
	for _, r := range items {
		values = append(values, r.LatencyMs)
		sum += r.LatencyMs
		if r.LatencyMs < minMs {
			minMs = r.LatencyMs
		}
		if r.LatencyMs > maxMs {
			maxMs = r.LatencyMs
		}
	}

	sort.Float64s(values)
	return Summary{
		Count: len(items),
		MinMs: minMs,
		MaxMs: maxMs,
		AvgMs: sum / float64(len(items)),
		P95Ms: percentile(values, 0.95),
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
