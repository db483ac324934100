package coverage

import (
	"fmt"
	"sync"

	"github.com/arable-data/fieldtrace/internal/monitoring"
)

// CellColor is the compact per-cell value: 8-bit RGBA packed as 0xRRGGBBAA.
// The zero value is the empty sentinel — an untreated cell. Treated cells
// always carry a non-zero alpha, so the sentinel is unambiguous.
type CellColor uint32

// CellEmpty marks ground that has not been worked.
const CellEmpty CellColor = 0

// RGB packs an opaque color value.
func RGB(r, g, b uint8) CellColor {
	return CellColor(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | 0xFF)
}

// Channels unpacks the color into its RGBA bytes.
func (c CellColor) Channels() (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// GridState tracks the lifecycle of a grid instance.
type GridState int

const (
	// GridUninitialized is the state before the first allocation; reads and
	// writes are dropped, never errors.
	GridUninitialized GridState = iota
	// GridAllocated means backing storage exists but the producer has not yet
	// populated it.
	GridAllocated
	// GridWritable means the grid holds live coverage and accepts updates.
	GridWritable
	// GridDisposed means the grid was retired by a reset or field change.
	GridDisposed
)

func (s GridState) String() string {
	switch s {
	case GridUninitialized:
		return "uninitialized"
	case GridAllocated:
		return "allocated"
	case GridWritable:
		return "writable"
	case GridDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("GridState(%d)", int(s))
	}
}

// GridGeometry is the world-space placement of a grid: origin at the
// south-west corner (MinEasting, MinNorthing), row-major dimensions, and the
// cell edge length. Row 0 is the northernmost row, matching raster image
// order so the renderer can blit the buffer without a flip.
type GridGeometry struct {
	OriginEasting  float64
	OriginNorthing float64
	Cols           int
	Rows           int
	CellSizeMeters float64
}

// CellCount returns Cols*Rows.
func (g GridGeometry) CellCount() int { return g.Cols * g.Rows }

// WorldBounds returns the world rectangle the grid covers.
func (g GridGeometry) WorldBounds() Bounds {
	return Bounds{
		MinEasting:  g.OriginEasting,
		MaxEasting:  g.OriginEasting + float64(g.Cols)*g.CellSizeMeters,
		MinNorthing: g.OriginNorthing,
		MaxNorthing: g.OriginNorthing + float64(g.Rows)*g.CellSizeMeters,
	}
}

// CellAt maps a world point to grid indices. ok is false outside the grid.
func (g GridGeometry) CellAt(easting, northing float64) (col, row int, ok bool) {
	if g.CellSizeMeters <= 0 {
		return 0, 0, false
	}
	maxNorthing := g.OriginNorthing + float64(g.Rows)*g.CellSizeMeters
	col = int((easting - g.OriginEasting) / g.CellSizeMeters)
	row = int((maxNorthing - northing) / g.CellSizeMeters)
	if col < 0 || col >= g.Cols || row < 0 || row >= g.Rows {
		return col, row, false
	}
	return col, row, true
}

// CellWorldCenter returns the world coordinate of a cell's centre.
func (g GridGeometry) CellWorldCenter(col, row int) (easting, northing float64) {
	maxNorthing := g.OriginNorthing + float64(g.Rows)*g.CellSizeMeters
	easting = g.OriginEasting + (float64(col)+0.5)*g.CellSizeMeters
	northing = maxNorthing - (float64(row)+0.5)*g.CellSizeMeters
	return easting, northing
}

// CoverageGrid owns the dense backing buffer and its world-space geometry.
// The buffer is row-major RGBA, 4 bytes per cell, alpha 0 meaning empty.
//
// A single buffer-scoped RWMutex guards every read and write: a torn read
// straddling a writer would render a visibly corrupt frame. Allocation happens
// outside the lock and the new buffer reference is swapped in under it, so a
// concurrent render sees either the old buffer or the new one, never a
// half-built one. The world↔cell mapping is stable between Allocates; after a
// reallocation the producer re-populates from its own source of truth, never
// from the old buffer, since cell size may have changed.
//
// seed, when non-nil, is the composited background raster. Clearing restores
// the seed rather than zeroing, and coveredCells counts cells that differ from
// the seed, so background imagery never counts as worked ground.
type CoverageGrid struct {
	mu    sync.RWMutex
	state GridState
	geom  GridGeometry
	pix   []uint8 // len = Cols*Rows*4
	seed  []uint8 // nil, or same length as pix

	coveredCells         int
	changesSinceSnapshot int
	lodDirty             bool
	needsRedraw          bool
}

// NewCoverageGrid returns a grid in the Uninitialized state. Reads and writes
// before the first Allocate are dropped.
func NewCoverageGrid() *CoverageGrid {
	return &CoverageGrid{state: GridUninitialized}
}

// Allocate (re)allocates backing storage for the planned geometry. The buffer
// is allocated before the lock is taken and swapped in atomically. Previously
// valid indices are invalidated; the caller must follow with a full
// re-population from the producer's source of truth.
func (g *CoverageGrid) Allocate(plan AllocationPlan) error {
	if plan.Cols < 1 || plan.Rows < 1 || plan.CellSizeMeters <= 0 {
		return fmt.Errorf("coverage: invalid allocation plan %+v", plan)
	}
	buf := make([]uint8, plan.Cols*plan.Rows*4)

	g.mu.Lock()
	prev := g.geom
	hadGrid := g.state == GridAllocated || g.state == GridWritable
	g.geom = GridGeometry{
		OriginEasting:  plan.OriginEasting,
		OriginNorthing: plan.OriginNorthing,
		Cols:           plan.Cols,
		Rows:           plan.Rows,
		CellSizeMeters: plan.CellSizeMeters,
	}
	g.pix = buf
	g.seed = nil
	g.state = GridAllocated
	g.coveredCells = 0
	g.changesSinceSnapshot = 0
	g.lodDirty = true
	g.needsRedraw = true
	g.mu.Unlock()

	gridAllocations.Inc()
	if hadGrid {
		monitoring.Logf("[CoverageGrid] reallocated %dx%d at %.2fm (was %dx%d at %.2fm)",
			plan.Cols, plan.Rows, plan.CellSizeMeters, prev.Cols, prev.Rows, prev.CellSizeMeters)
	} else {
		monitoring.Logf("[CoverageGrid] allocated %dx%d at %.2fm origin=(%.2f, %.2f)",
			plan.Cols, plan.Rows, plan.CellSizeMeters, plan.OriginEasting, plan.OriginNorthing)
	}
	return nil
}

// Dispose retires the grid. Subsequent reads and writes are dropped.
func (g *CoverageGrid) Dispose() {
	g.mu.Lock()
	g.state = GridDisposed
	g.pix = nil
	g.seed = nil
	g.coveredCells = 0
	g.mu.Unlock()
}

// State returns the grid's lifecycle state.
func (g *CoverageGrid) State() GridState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Geometry returns the grid's world-space placement.
func (g *CoverageGrid) Geometry() GridGeometry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.geom
}

// WorldBounds returns the world rectangle the grid covers. Invariant: always a
// superset of every cell written since the last reset.
func (g *CoverageGrid) WorldBounds() Bounds {
	return g.Geometry().WorldBounds()
}

// writableLocked reports whether the grid accepts writes. Caller holds g.mu.
func (g *CoverageGrid) writableLocked() bool {
	return g.state == GridAllocated || g.state == GridWritable
}

// cellCoveredLocked reports whether the cell at byte offset i differs from the
// untreated baseline (the seed, or empty when no seed). Caller holds g.mu.
func (g *CoverageGrid) cellCoveredLocked(i int) bool {
	if g.seed == nil {
		return g.pix[i+3] != 0
	}
	return g.pix[i] != g.seed[i] || g.pix[i+1] != g.seed[i+1] ||
		g.pix[i+2] != g.seed[i+2] || g.pix[i+3] != g.seed[i+3]
}

// writeCellLocked applies one cell write. Out-of-range indices are dropped —
// expected during resize races, never an error. Caller holds g.mu for writing.
// Returns true if the buffer changed.
func (g *CoverageGrid) writeCellLocked(col, row int, c CellColor) bool {
	if !g.writableLocked() {
		return false
	}
	if col < 0 || col >= g.geom.Cols || row < 0 || row >= g.geom.Rows {
		return false
	}
	i := (row*g.geom.Cols + col) * 4
	r, gr, b, a := c.Channels()
	if g.pix[i] == r && g.pix[i+1] == gr && g.pix[i+2] == b && g.pix[i+3] == a {
		return false // idempotent re-apply
	}
	wasCovered := g.cellCoveredLocked(i)
	g.pix[i], g.pix[i+1], g.pix[i+2], g.pix[i+3] = r, gr, b, a
	nowCovered := g.cellCoveredLocked(i)
	if nowCovered && !wasCovered {
		g.coveredCells++
	} else if !nowCovered && wasCovered {
		g.coveredCells--
	}
	return true
}

// WriteCell writes one cell. O(1), bounds-checked; out-of-range writes and
// writes before allocation are silently ignored.
func (g *CoverageGrid) WriteCell(col, row int, c CellColor) {
	g.mu.Lock()
	if g.writeCellLocked(col, row, c) {
		g.changesSinceSnapshot++
		g.lodDirty = true
		g.needsRedraw = true
	}
	g.mu.Unlock()
}

// ReadCell reads one cell. O(1), bounds-checked; returns CellEmpty out of
// range or before allocation.
func (g *CoverageGrid) ReadCell(col, row int) CellColor {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.writableLocked() || col < 0 || col >= g.geom.Cols || row < 0 || row >= g.geom.Rows {
		return CellEmpty
	}
	i := (row*g.geom.Cols + col) * 4
	return CellColor(uint32(g.pix[i])<<24 | uint32(g.pix[i+1])<<16 | uint32(g.pix[i+2])<<8 | uint32(g.pix[i+3]))
}

// Clear resets the entire buffer: back to the composited background when one
// was seeded, otherwise to the fill color. Bulk memory operations, not
// per-cell writes.
func (g *CoverageGrid) Clear(fill CellColor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.writableLocked() {
		return
	}
	g.clearLocked(fill)
	g.lodDirty = true
	g.needsRedraw = true
}

// clearLocked restores the untreated baseline. Caller holds g.mu for writing.
func (g *CoverageGrid) clearLocked(fill CellColor) {
	if g.seed != nil {
		copy(g.pix, g.seed)
		g.coveredCells = 0
		return
	}
	if fill == CellEmpty {
		clear(g.pix)
		g.coveredCells = 0
		return
	}
	r, gr, b, a := fill.Channels()
	g.pix[0], g.pix[1], g.pix[2], g.pix[3] = r, gr, b, a
	// Doubling copy fills the rest in O(log n) copies.
	for filled := 4; filled < len(g.pix); filled *= 2 {
		copy(g.pix[filled:], g.pix[:filled])
	}
	if a != 0 {
		g.coveredCells = g.geom.CellCount()
	} else {
		g.coveredCells = 0
	}
}

// setSeedLocked installs the composited background as the untreated baseline
// and resets the visible buffer to it. Caller holds g.mu for writing.
func (g *CoverageGrid) setSeedLocked(seed []uint8) {
	g.seed = seed
	copy(g.pix, seed)
	g.coveredCells = 0
	g.lodDirty = true
	g.needsRedraw = true
}

// CoveredCells returns the number of cells whose color differs from the
// untreated baseline.
func (g *CoverageGrid) CoveredCells() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.coveredCells
}

// ChangesSinceSnapshot returns the number of buffer-changing writes since the
// last persisted snapshot.
func (g *CoverageGrid) ChangesSinceSnapshot() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.changesSinceSnapshot
}

// consumeSnapshotChanges subtracts writes accounted for by a persisted
// snapshot. Writes that landed while the snapshot was being encoded stay
// counted toward the next one.
func (g *CoverageGrid) consumeSnapshotChanges(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.changesSinceSnapshot -= n
	if g.changesSinceSnapshot < 0 {
		g.changesSinceSnapshot = 0
	}
}

// NeedsRedraw reports whether the buffer changed since the last frame
// consumed the flag.
func (g *CoverageGrid) NeedsRedraw() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.needsRedraw
}

// ConsumeRedraw returns and clears the needs-redraw flag.
func (g *CoverageGrid) ConsumeRedraw() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.needsRedraw
	g.needsRedraw = false
	return d
}

// lodStale reports whether the buffer changed since the LOD was last rebuilt.
func (g *CoverageGrid) lodStale() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lodDirty
}

// clearLODDirty marks the LOD as caught up. Called only after a regeneration
// succeeds, so a failed rebuild leaves the grid flagged for retry.
func (g *CoverageGrid) clearLODDirty() {
	g.mu.Lock()
	g.lodDirty = false
	g.mu.Unlock()
}

// snapshotBuffer copies geometry and raw buffer under the read lock. The copy
// keeps lock hold time bounded by buffer size with no I/O or encoding inside.
func (g *CoverageGrid) snapshotBuffer() (GridGeometry, []uint8, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.writableLocked() {
		return GridGeometry{}, nil, false
	}
	buf := make([]uint8, len(g.pix))
	copy(buf, g.pix)
	return g.geom, buf, true
}

// restoreBuffer copies a raw buffer back verbatim, bypassing the normal write
// path. Used by persistence load; the geometry must already match.
func (g *CoverageGrid) restoreBuffer(pix []uint8) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(pix) != len(g.pix) {
		return fmt.Errorf("%w: buffer length %d, grid wants %d", ErrSnapshotFormat, len(pix), len(g.pix))
	}
	copy(g.pix, pix)
	covered := 0
	for i := 0; i < len(g.pix); i += 4 {
		if g.cellCoveredLocked(i) {
			covered++
		}
	}
	g.coveredCells = covered
	g.changesSinceSnapshot = 0
	g.state = GridWritable
	g.lodDirty = true
	g.needsRedraw = true
	return nil
}
