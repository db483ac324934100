package coverage

import "image"

// CellUpdate is one producer-supplied cell: grid indices plus the baked color.
type CellUpdate struct {
	Col   int
	Row   int
	Color CellColor
}

// BoundsProvider supplies the authoritative recorded extent. ok is false when
// nothing has been recorded yet.
type BoundsProvider interface {
	CoverageBounds() (b Bounds, ok bool)
}

// CellSource supplies covered cells from the guidance producer. AllCells
// enumerates everything covered within a region at the given cell size, for
// full rebuilds; NewCells returns only cells covered since the previous call,
// for incremental updates.
type CellSource interface {
	AllCells(cellSize float64, region Bounds) []CellUpdate
	NewCells(cellSize float64) []CellUpdate
}

// BackgroundSource supplies an optional background raster and its world
// placement rectangle, merged once into a freshly allocated grid.
type BackgroundSource interface {
	BackgroundRaster() (img image.Image, placement Bounds, err error)
}
