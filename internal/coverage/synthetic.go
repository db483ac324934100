package coverage

import (
	"math"
	"sync"
)

// SyntheticPass simulates a machine working a field in boustrophedon rows:
// west to east, step one swath north, back east to west. It implements
// BoundsProvider and CellSource so tools and tests can drive a manager without
// GPS hardware. Advancing by the same distances always yields the same cells.
//
// Cell indices are computed against the region handed to the most recent
// AllCells call, which is how the manager establishes the grid frame before
// any incremental batch is requested.
type SyntheticPass struct {
	field Bounds
	swath float64
	color CellColor

	mu       sync.Mutex
	traveled float64 // distance along the path, metres
	emitted  float64 // distance already handed out via NewCells
	ref      Bounds  // cell index frame, from the last AllCells region
	haveRef  bool
}

// NewSyntheticPass returns a pass over the field with the given swath width.
func NewSyntheticPass(field Bounds, swathWidth float64, color CellColor) *SyntheticPass {
	return &SyntheticPass{field: field, swath: swathWidth, color: color}
}

// rowLength is the working length of one boustrophedon row.
func (p *SyntheticPass) rowLength() float64 { return p.field.Width() }

// totalPath is the full path length over the field, turns excluded.
func (p *SyntheticPass) totalPath() float64 {
	rows := math.Ceil(p.field.Height() / p.swath)
	return rows * p.rowLength()
}

// Advance moves the simulated machine forward along its path, clamped to the
// end of the field.
func (p *SyntheticPass) Advance(meters float64) {
	if meters <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.traveled += meters
	if total := p.totalPath(); p.traveled > total {
		p.traveled = total
	}
}

// Done reports whether the whole field has been worked.
func (p *SyntheticPass) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.traveled >= p.totalPath()
}

// CoverageBounds returns the bounds of ground worked so far. ok is false
// before the machine has moved.
func (p *SyntheticPass) CoverageBounds() (Bounds, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.traveled <= 0 {
		return Bounds{}, false
	}
	rowsDone := p.traveled / p.rowLength()
	maxNorthing := p.field.MinNorthing + math.Ceil(rowsDone)*p.swath
	if maxNorthing > p.field.MaxNorthing {
		maxNorthing = p.field.MaxNorthing
	}
	return Bounds{
		MinEasting:  p.field.MinEasting,
		MaxEasting:  p.field.MaxEasting,
		MinNorthing: p.field.MinNorthing,
		MaxNorthing: maxNorthing,
	}, true
}

// AllCells enumerates every cell covered since the start of the pass, indexed
// in the given region's frame. The region also becomes the frame for
// subsequent NewCells batches.
func (p *SyntheticPass) AllCells(cellSize float64, region Bounds) []CellUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = region
	p.haveRef = true
	return p.cellsForRange(cellSize, 0, p.traveled)
}

// NewCells enumerates cells covered since the previous NewCells or AllCells
// call. Returns nil before the first AllCells establishes a frame.
func (p *SyntheticPass) NewCells(cellSize float64) []CellUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.haveRef {
		return nil
	}
	cells := p.cellsForRange(cellSize, p.emitted, p.traveled)
	p.emitted = p.traveled
	return cells
}

// cellsForRange maps the path interval [from, to) onto grid cells. Each
// traveled row covers a band one swath wide centred on its line; every cell
// whose centre lies in a covered band segment is emitted. Caller holds p.mu.
func (p *SyntheticPass) cellsForRange(cellSize, from, to float64) []CellUpdate {
	if cellSize <= 0 || to <= from {
		return nil
	}
	rowLen := p.rowLength()
	if rowLen <= 0 {
		return nil
	}

	var cells []CellUpdate
	firstRow := int(from / rowLen)
	lastRow := int(math.Ceil(to/rowLen)) - 1
	for k := firstRow; k <= lastRow; k++ {
		segStart := math.Max(from, float64(k)*rowLen) - float64(k)*rowLen
		segEnd := math.Min(to, float64(k+1)*rowLen) - float64(k)*rowLen
		if segEnd <= segStart {
			continue
		}
		// Odd rows run east to west; mirror the offsets so the covered
		// easting interval is frame-absolute.
		e0, e1 := segStart, segEnd
		if k%2 == 1 {
			e0, e1 = rowLen-segEnd, rowLen-segStart
		}
		lineNorthing := p.field.MinNorthing + (float64(k)+0.5)*p.swath
		bandMin := math.Max(lineNorthing-p.swath/2, p.field.MinNorthing)
		bandMax := math.Min(lineNorthing+p.swath/2, p.field.MaxNorthing)

		cells = append(cells, p.bandCells(cellSize,
			p.field.MinEasting+e0, p.field.MinEasting+e1, bandMin, bandMax)...)
	}
	return cells
}

// bandCells emits every cell of the reference frame whose centre lies inside
// the given world rectangle. Caller holds p.mu.
func (p *SyntheticPass) bandCells(cellSize, eMin, eMax, nMin, nMax float64) []CellUpdate {
	colStart := int(math.Floor((eMin - p.ref.MinEasting) / cellSize))
	colEnd := int(math.Ceil((eMax - p.ref.MinEasting) / cellSize))
	rowStart := int(math.Floor((p.ref.MaxNorthing - nMax) / cellSize))
	rowEnd := int(math.Ceil((p.ref.MaxNorthing - nMin) / cellSize))

	var cells []CellUpdate
	for row := rowStart; row < rowEnd; row++ {
		northing := p.ref.MaxNorthing - (float64(row)+0.5)*cellSize
		if northing < nMin || northing >= nMax {
			continue
		}
		for col := colStart; col < colEnd; col++ {
			easting := p.ref.MinEasting + (float64(col)+0.5)*cellSize
			if easting < eMin || easting >= eMax {
				continue
			}
			cells = append(cells, CellUpdate{Col: col, Row: row, Color: p.color})
		}
	}
	return cells
}
