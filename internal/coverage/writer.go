package coverage

// IncrementalWriter applies producer cell updates to a grid. Both modes batch
// all writes under a single lock acquisition and mark the LOD and redraw flags
// once, so per-tick cost stays O(cells in the batch) with no per-cell lock
// traffic.
type IncrementalWriter struct {
	grid *CoverageGrid
}

// NewIncrementalWriter returns a writer bound to the given grid.
func NewIncrementalWriter(g *CoverageGrid) *IncrementalWriter {
	return &IncrementalWriter{grid: g}
}

// ApplyIncremental applies cells newly covered since the previous call,
// without clearing. Re-applying the same (cell, color) is a no-op in effect.
// Returns the number of writes that changed the buffer. Writes to an
// unallocated or disposed grid are dropped.
func (w *IncrementalWriter) ApplyIncremental(cells []CellUpdate) int {
	g := w.grid
	g.mu.Lock()
	if !g.writableLocked() {
		g.mu.Unlock()
		return 0
	}
	applied := 0
	for _, c := range cells {
		if g.writeCellLocked(c.Col, c.Row, c.Color) {
			applied++
		}
	}
	if applied > 0 {
		g.changesSinceSnapshot += applied
		g.lodDirty = true
		g.needsRedraw = true
	}
	g.state = GridWritable
	g.mu.Unlock()

	cellsWritten.Add(float64(applied))
	return applied
}

// ApplyFull replaces the grid's content from a complete enumeration: clear,
// then apply every cell. Used after Allocate, after load, and after anything
// that could invalidate cached positions.
func (w *IncrementalWriter) ApplyFull(cells []CellUpdate) int {
	g := w.grid
	g.mu.Lock()
	if !g.writableLocked() {
		g.mu.Unlock()
		return 0
	}
	g.clearLocked(CellEmpty)
	applied := 0
	for _, c := range cells {
		if g.writeCellLocked(c.Col, c.Row, c.Color) {
			applied++
		}
	}
	g.changesSinceSnapshot += applied
	g.lodDirty = true
	g.needsRedraw = true
	g.state = GridWritable
	g.mu.Unlock()

	cellsWritten.Add(float64(applied))
	fullRebuilds.Inc()
	return applied
}
