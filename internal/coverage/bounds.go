package coverage

import (
	"errors"
	"fmt"
	"math"
)

// ErrAllocationTooLarge reports that the requested extent cannot be covered by
// a capped grid even at the coarsest permitted cell size. The caller keeps the
// previous grid; the excess area is simply not visualised.
var ErrAllocationTooLarge = errors.New("coverage: extent exceeds maximum grid dimensions at coarsest cell size")

// Bounds is a recorded extent in world coordinates (planar easting/northing,
// metres). Min/Max are inclusive edges of the covered rectangle.
type Bounds struct {
	MinEasting  float64
	MaxEasting  float64
	MinNorthing float64
	MaxNorthing float64
}

// Valid reports whether the bounds describe a non-empty rectangle.
func (b Bounds) Valid() bool {
	return b.MaxEasting > b.MinEasting && b.MaxNorthing > b.MinNorthing
}

// Width returns the easting span in metres.
func (b Bounds) Width() float64 { return b.MaxEasting - b.MinEasting }

// Height returns the northing span in metres.
func (b Bounds) Height() float64 { return b.MaxNorthing - b.MinNorthing }

// Union returns the smallest bounds containing both b and o. A zero-value
// operand is treated as absent.
func (b Bounds) Union(o Bounds) Bounds {
	if !b.Valid() {
		return o
	}
	if !o.Valid() {
		return b
	}
	return Bounds{
		MinEasting:  math.Min(b.MinEasting, o.MinEasting),
		MaxEasting:  math.Max(b.MaxEasting, o.MaxEasting),
		MinNorthing: math.Min(b.MinNorthing, o.MinNorthing),
		MaxNorthing: math.Max(b.MaxNorthing, o.MaxNorthing),
	}
}

// Contains reports whether o lies entirely within b.
func (b Bounds) Contains(o Bounds) bool {
	return o.MinEasting >= b.MinEasting && o.MaxEasting <= b.MaxEasting &&
		o.MinNorthing >= b.MinNorthing && o.MaxNorthing <= b.MaxNorthing
}

// ContainsPoint reports whether the world point (easting, northing) lies within b.
func (b Bounds) ContainsPoint(easting, northing float64) bool {
	return easting >= b.MinEasting && easting <= b.MaxEasting &&
		northing >= b.MinNorthing && northing <= b.MaxNorthing
}

func (b Bounds) String() string {
	return fmt.Sprintf("E[%.2f..%.2f] N[%.2f..%.2f]", b.MinEasting, b.MaxEasting, b.MinNorthing, b.MaxNorthing)
}

// AllocationPlan is the resolved geometry for a grid allocation: the origin at
// (MinEasting, MinNorthing), dimensions, and the possibly-coarsened cell size.
type AllocationPlan struct {
	OriginEasting  float64
	OriginNorthing float64
	Cols           int
	Rows           int
	CellSizeMeters float64
}

// WorldBounds returns the world rectangle the planned grid covers. It is
// always a superset of the bounds the plan was computed from, since dimensions
// round up to whole cells.
func (p AllocationPlan) WorldBounds() Bounds {
	return Bounds{
		MinEasting:  p.OriginEasting,
		MaxEasting:  p.OriginEasting + float64(p.Cols)*p.CellSizeMeters,
		MinNorthing: p.OriginNorthing,
		MaxNorthing: p.OriginNorthing + float64(p.Rows)*p.CellSizeMeters,
	}
}

// PlanAllocation computes grid geometry for the given extent. It starts at the
// configured finest cell size and doubles it (halving dimensions) until both
// axes fit within maxDim. If the required cell size would exceed maxCellSize
// the plan is refused with ErrAllocationTooLarge and the caller must keep its
// previous grid.
func PlanAllocation(b Bounds, cellSize, maxCellSize float64, maxDim int) (AllocationPlan, error) {
	if !b.Valid() {
		return AllocationPlan{}, fmt.Errorf("coverage: cannot plan allocation for empty bounds %v", b)
	}
	if cellSize <= 0 || maxDim < 1 {
		return AllocationPlan{}, fmt.Errorf("coverage: invalid allocation parameters cellSize=%f maxDim=%d", cellSize, maxDim)
	}

	for {
		cols := int(math.Ceil(b.Width() / cellSize))
		rows := int(math.Ceil(b.Height() / cellSize))
		if cols < 1 {
			cols = 1
		}
		if rows < 1 {
			rows = 1
		}
		if cols <= maxDim && rows <= maxDim {
			return AllocationPlan{
				OriginEasting:  b.MinEasting,
				OriginNorthing: b.MinNorthing,
				Cols:           cols,
				Rows:           rows,
				CellSizeMeters: cellSize,
			}, nil
		}
		if cellSize*2 > maxCellSize {
			return AllocationPlan{}, fmt.Errorf("%w: extent %s needs %dx%d cells at %.2fm", ErrAllocationTooLarge, b, cols, rows, cellSize)
		}
		cellSize *= 2
	}
}
