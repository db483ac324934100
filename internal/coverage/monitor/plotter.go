package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/arable-data/fieldtrace/internal/coverage"
	"github.com/arable-data/fieldtrace/internal/units"
)

// SessionPlotter records session progress over time for visualization.
// It samples the CoverageManager's stats on each call to Sample(),
// accumulating time series data that can be plotted after a run.
type SessionPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	startTime time.Time
	samples   []ProgressSample
}

// ProgressSample represents one snapshot of session progress.
type ProgressSample struct {
	Elapsed         time.Duration
	CoveredCells    int
	CoveredAreaM2   float64
	CoveredFraction float64
	ChangesPending  int
}

// NewSessionPlotter creates a plotter for a coverage session.
func NewSessionPlotter() *SessionPlotter {
	return &SessionPlotter{}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/field-7/20260830_101500").
func (sp *SessionPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	sp.outputDir = outputDir
	sp.enabled = true
	sp.startTime = time.Now()
	sp.samples = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (sp *SessionPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (sp *SessionPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// Sample captures the manager's current progress. Call once per tick or at
// any cadence the run cares about.
func (sp *SessionPlotter) Sample(mgr *coverage.CoverageManager) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.enabled || mgr == nil {
		return
	}
	st := mgr.Stats()
	sp.samples = append(sp.samples, ProgressSample{
		Elapsed:         time.Since(sp.startTime),
		CoveredCells:    st.CoveredCells,
		CoveredAreaM2:   st.CoveredAreaM2,
		CoveredFraction: st.CoveredFraction,
		ChangesPending:  mgr.ChangesSinceSnapshot(),
	})
}

// SampleCount returns the number of samples collected.
func (sp *SessionPlotter) SampleCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.samples)
}

// OutputDir returns the current output directory for plots.
func (sp *SessionPlotter) OutputDir() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.outputDir
}

// GeneratePlots creates PNG files for the session: covered area over time and
// covered fraction over time. Returns the number of plots generated.
func (sp *SessionPlotter) GeneratePlots() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(sp.samples) == 0 {
		return 0, nil
	}

	areaPts := make(plotter.XYs, 0, len(sp.samples))
	fracPts := make(plotter.XYs, 0, len(sp.samples))
	for _, s := range sp.samples {
		x := s.Elapsed.Minutes()
		areaPts = append(areaPts, plotter.XY{X: x, Y: units.Hectares(s.CoveredAreaM2)})
		fracPts = append(fracPts, plotter.XY{X: x, Y: s.CoveredFraction * 100})
	}

	pArea := plot.New()
	pArea.Title.Text = "Covered Area"
	pArea.X.Label.Text = "Minutes"
	pArea.Y.Label.Text = "Hectares"

	areaLine, err := plotter.NewLine(areaPts)
	if err != nil {
		return 0, err
	}
	areaLine.Width = vg.Points(1)
	pArea.Add(areaLine, plotter.NewGrid())

	areaFile := filepath.Join(sp.outputDir, "covered_area.png")
	if err := pArea.Save(10*vg.Inch, 5*vg.Inch, areaFile); err != nil {
		return 0, fmt.Errorf("save area plot: %w", err)
	}

	pFrac := plot.New()
	pFrac.Title.Text = "Covered Fraction"
	pFrac.X.Label.Text = "Minutes"
	pFrac.Y.Label.Text = "Percent of grid"

	fracLine, err := plotter.NewLine(fracPts)
	if err != nil {
		return 1, err
	}
	fracLine.Width = vg.Points(1)
	pFrac.Add(fracLine, plotter.NewGrid())

	fracFile := filepath.Join(sp.outputDir, "covered_fraction.png")
	if err := pFrac.Save(10*vg.Inch, 5*vg.Inch, fracFile); err != nil {
		return 1, fmt.Errorf("save fraction plot: %w", err)
	}

	return 2, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots:
// <baseDir>/<fieldID>/<timestamp>.
func MakePlotOutputDir(baseDir, fieldID string) string {
	ts := FormatTimestamp(time.Now())
	if fieldID == "" {
		fieldID = "session"
	}
	return filepath.Join(baseDir, fieldID, ts)
}
