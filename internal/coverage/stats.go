package coverage

import (
	"time"

	"github.com/arable-data/fieldtrace/internal/units"
)

// CoverageStats summarises session progress for status displays and reports.
type CoverageStats struct {
	SessionID      string
	FieldID        string
	SessionElapsed time.Duration

	GridState      GridState
	Cols           int
	Rows           int
	CellSizeMeters float64

	CoveredCells     int
	TotalCells       int
	CoveredAreaM2    float64
	CoveredFraction  float64
	RecordedBounds   Bounds
	LastSnapshotTime time.Time
}

// CoveredArea formats the covered area in display units.
func (s CoverageStats) CoveredArea() string {
	return units.FormatArea(s.CoveredAreaM2)
}

// WorkRate returns the average covered area per hour over the session.
func (s CoverageStats) WorkRate() string {
	hours := s.SessionElapsed.Hours()
	if hours <= 0 {
		return units.FormatWorkRate(0)
	}
	return units.FormatWorkRate(s.CoveredAreaM2 / hours)
}

// Stats returns a point-in-time summary of the session and grid.
func (m *CoverageManager) Stats() CoverageStats {
	m.mu.Lock()
	grid := m.grid
	session := m.session
	bounds := m.recordedBounds
	lastSnap := m.lastSnapshotTime
	m.mu.Unlock()

	st := CoverageStats{
		SessionID:        session.ID,
		FieldID:          session.FieldID,
		SessionElapsed:   time.Since(session.StartedAt),
		RecordedBounds:   bounds,
		LastSnapshotTime: lastSnap,
	}
	if grid == nil {
		st.GridState = GridUninitialized
		return st
	}
	geom := grid.Geometry()
	st.GridState = grid.State()
	st.Cols = geom.Cols
	st.Rows = geom.Rows
	st.CellSizeMeters = geom.CellSizeMeters
	st.CoveredCells = grid.CoveredCells()
	st.TotalCells = geom.CellCount()
	st.CoveredAreaM2 = float64(st.CoveredCells) * geom.CellSizeMeters * geom.CellSizeMeters
	if st.TotalCells > 0 {
		st.CoveredFraction = float64(st.CoveredCells) / float64(st.TotalCells)
	}
	return st
}

// ChangesSinceSnapshot reports buffer-changing writes since the last persisted
// snapshot. Satisfies the flusher's ChangeCounter.
func (m *CoverageManager) ChangesSinceSnapshot() int {
	grid := m.Grid()
	if grid == nil {
		return 0
	}
	return grid.ChangesSinceSnapshot()
}
