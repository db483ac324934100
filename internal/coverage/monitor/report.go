package monitor

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/arable-data/fieldtrace/internal/units"
)

// SnapshotPoint is one persisted snapshot's progress, already decoded from a
// coverage_snapshots row.
type SnapshotPoint struct {
	Taken        time.Time
	CoveredCells int
	CellSizeM    float64
	ChangedCells int
	Reason       string
}

// coveredAreaM2 derives worked area from the cell count and cell size.
func (p SnapshotPoint) coveredAreaM2() float64 {
	return float64(p.CoveredCells) * p.CellSizeM * p.CellSizeM
}

// WriteProgressReport renders an HTML progress chart over a session's stored
// snapshots: covered hectares and per-snapshot change counts against time.
func WriteProgressReport(w io.Writer, fieldID string, points []SnapshotPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("no snapshots to report")
	}

	xAxis := make([]string, 0, len(points))
	area := make([]opts.LineData, 0, len(points))
	changed := make([]opts.BarData, 0, len(points))
	for _, p := range points {
		xAxis = append(xAxis, p.Taken.Format("15:04:05"))
		area = append(area, opts.LineData{Value: units.Hectares(p.coveredAreaM2())})
		changed = append(changed, opts.BarData{Value: p.ChangedCells})
	}

	last := points[len(points)-1]
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Coverage Progress", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Coverage Progress",
			Subtitle: fmt.Sprintf("field=%s snapshots=%d covered=%s", fieldID, len(points), units.FormatArea(last.coveredAreaM2())),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Hectares"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("covered area", area, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	if err := line.Render(w); err != nil {
		return fmt.Errorf("render progress chart: %w", err)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Cells Changed per Snapshot"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cells"}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("changed cells", changed)
	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render change chart: %w", err)
	}
	return nil
}
