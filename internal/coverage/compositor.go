package coverage

import (
	"image"

	"github.com/arable-data/fieldtrace/internal/monitoring"
)

// SeedFromRaster merges a background raster into a freshly allocated grid so
// the visual is continuous between "nothing worked" and "something worked".
// For every grid cell the world centre is mapped into the raster's pixel space
// through its geo-placement rectangle and nearest-sampled; cells outside the
// raster keep the default fill. O(grid cells), paid once per allocation, never
// per frame.
//
// The composite is built outside the grid lock and swapped in under it.
// Returns the number of cells that sampled the raster; a nil image or invalid
// placement is logged and skipped, leaving the grid empty.
func SeedFromRaster(g *CoverageGrid, img image.Image, placement Bounds) int {
	if img == nil || !placement.Valid() {
		monitoring.Logf("[Compositor] no usable background raster (placement=%v), grid stays empty", placement)
		return 0
	}

	geom := g.Geometry()
	if geom.CellCount() == 0 {
		return 0
	}

	ib := img.Bounds()
	imgW, imgH := ib.Dx(), ib.Dy()
	if imgW == 0 || imgH == 0 {
		monitoring.Logf("[Compositor] background raster has zero size, grid stays empty")
		return 0
	}

	seed := make([]uint8, geom.CellCount()*4)
	sampled := 0
	for row := 0; row < geom.Rows; row++ {
		for col := 0; col < geom.Cols; col++ {
			easting, northing := geom.CellWorldCenter(col, row)
			if !placement.ContainsPoint(easting, northing) {
				continue
			}
			// Raster y grows southward: placement.MaxNorthing maps to pixel row 0.
			px := int((easting - placement.MinEasting) / placement.Width() * float64(imgW))
			py := int((placement.MaxNorthing - northing) / placement.Height() * float64(imgH))
			if px >= imgW {
				px = imgW - 1
			}
			if py >= imgH {
				py = imgH - 1
			}
			r, gr, b, a := img.At(ib.Min.X+px, ib.Min.Y+py).RGBA()
			i := (row*geom.Cols + col) * 4
			seed[i] = uint8(r >> 8)
			seed[i+1] = uint8(gr >> 8)
			seed[i+2] = uint8(b >> 8)
			seed[i+3] = uint8(a >> 8)
			sampled++
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.writableLocked() || g.geom != geom {
		// Grid was reallocated while compositing; the next allocation will
		// composite again.
		monitoring.Debugf("[Compositor] grid changed during composite, dropping result")
		return 0
	}
	g.setSeedLocked(seed)
	monitoring.Logf("[Compositor] seeded %d/%d cells from background raster", sampled, geom.CellCount())
	return sampled
}
