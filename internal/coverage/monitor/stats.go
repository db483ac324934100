// Package monitor provides diagnostics for coverage sessions: frame timing
// aggregation, time-series sampling of session progress, and plot/report
// generation after a run.
package monitor

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/arable-data/fieldtrace/internal/coverage"
)

// FrameStats aggregates per-frame render timings. It implements
// coverage.RenderObserver so it can be handed straight to NewRenderer.
type FrameStats struct {
	mu        sync.Mutex
	durations []float64 // seconds
	blitted   int
	lodFrames int
}

// NewFrameStats returns an empty aggregator.
func NewFrameStats() *FrameStats {
	return &FrameStats{}
}

// ObserveRender records one frame.
func (f *FrameStats) ObserveRender(fi coverage.FrameInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = append(f.durations, fi.Duration.Seconds())
	if fi.Blitted {
		f.blitted++
	}
	if fi.UsedLOD {
		f.lodFrames++
	}
}

// FrameSummary is the aggregate over all observed frames.
type FrameSummary struct {
	Frames      int
	Blitted     int
	LODFrames   int
	MeanSeconds float64
	P50Seconds  float64
	P95Seconds  float64
	MaxSeconds  float64
}

// Mean returns the average frame duration.
func (s FrameSummary) Mean() time.Duration {
	return time.Duration(s.MeanSeconds * float64(time.Second))
}

// P95 returns the 95th percentile frame duration.
func (s FrameSummary) P95() time.Duration {
	return time.Duration(s.P95Seconds * float64(time.Second))
}

// Summary computes aggregate timings over everything observed so far.
func (f *FrameStats) Summary() FrameSummary {
	f.mu.Lock()
	durations := append([]float64{}, f.durations...)
	s := FrameSummary{
		Frames:    len(f.durations),
		Blitted:   f.blitted,
		LODFrames: f.lodFrames,
	}
	f.mu.Unlock()

	if len(durations) == 0 {
		return s
	}
	sort.Float64s(durations)
	s.MeanSeconds = stat.Mean(durations, nil)
	s.P50Seconds = stat.Quantile(0.5, stat.Empirical, durations, nil)
	s.P95Seconds = stat.Quantile(0.95, stat.Empirical, durations, nil)
	s.MaxSeconds = durations[len(durations)-1]
	return s
}

// Reset discards all observations.
func (f *FrameStats) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations = f.durations[:0]
	f.blitted = 0
	f.lodFrames = 0
}
