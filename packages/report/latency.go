package report

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/apiregress/packages/core/model"
)

// Latency summarizes the response times reported by the runner
type Latency struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Empty reports whether no timing was recorded
func (l Latency) Empty() bool {
	return l.Count == 0
}

// ComputeLatency builds latency statistics from results that carry a
// response time. Results without timing are ignored.
func ComputeLatency(results []model.ReconciledResult) Latency {
	// 1us to 10m, 3 significant digits
	h := hdrhistogram.New(1, 600_000_000, 3)
	for _, r := range results {
		if r.Duration <= 0 {
			continue
		}
		us := r.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		_ = h.RecordValue(us)
	}

	if h.TotalCount() == 0 {
		return Latency{}
	}

	return Latency{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
	}
}
