package coverage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gridAllocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_grid_allocations",
		Help: "The number of grid buffer allocations, including reallocations on bounds growth.",
	})

	allocationRefusals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_allocation_refusals",
		Help: "Allocation requests refused because no cell size within limits fits the bounds.",
	})

	cellsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_cells_written",
		Help: "The number of cell writes that changed the buffer.",
	})

	fullRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_full_rebuilds",
		Help: "The number of clear-and-replay rebuilds of the grid.",
	})

	lodRegenerations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coverage_lod_regenerations",
		Help: "The number of LOD buffer rebuilds.",
	})

	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_render_seconds",
		Help:    "The time to blit the coverage layer into a frame.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	snapshotBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_snapshot_bytes",
		Help:    "Compressed snapshot blob sizes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
)
