package coverage

import "image"

// LODGrid is a render-only, fixed-ratio nearest-point downsample of a
// CoverageGrid. It is immutable once built: regeneration produces a fresh
// LODGrid that replaces the old pointer, so renders never observe a partially
// rebuilt buffer. Never authoritative — staleness is only temporal.
type LODGrid struct {
	geom  GridGeometry // downsampled dims; CellSizeMeters is ratio × source
	ratio int
	pix   []uint8
}

// Geometry returns the LOD buffer's world-space placement. Its world rectangle
// can slightly exceed the source grid's when dimensions don't divide evenly.
func (l *LODGrid) Geometry() GridGeometry { return l.geom }

// Ratio returns the linear downsample ratio.
func (l *LODGrid) Ratio() int { return l.ratio }

// ReadCell returns the LOD cell value; CellEmpty out of range.
func (l *LODGrid) ReadCell(col, row int) CellColor {
	if col < 0 || col >= l.geom.Cols || row < 0 || row >= l.geom.Rows {
		return CellEmpty
	}
	i := (row*l.geom.Cols + col) * 4
	return CellColor(uint32(l.pix[i])<<24 | uint32(l.pix[i+1])<<16 | uint32(l.pix[i+2])<<8 | uint32(l.pix[i+3]))
}

// rgba wraps the buffer as an image without copying.
func (l *LODGrid) rgba() *image.RGBA {
	return &image.RGBA{
		Pix:    l.pix,
		Stride: l.geom.Cols * 4,
		Rect:   image.Rect(0, 0, l.geom.Cols, l.geom.Rows),
	}
}

// regenerateLOD builds a downsample of the grid's current content. Every LOD
// cell takes the detail cell at its nearest-sample source coordinate — no
// averaging, since coverage visualisation needs recognisability, not
// photometric accuracy. Cost is O(LOD cells) regardless of how many source
// cells changed. The destination buffer is allocated before the read lock is
// taken. Returns nil when the grid holds no buffer or was swapped mid-read.
func regenerateLOD(g *CoverageGrid, ratio int) *LODGrid {
	if ratio < 1 {
		ratio = 1
	}
	geom := g.Geometry()
	if geom.CellCount() == 0 {
		return nil
	}
	lodCols := (geom.Cols + ratio - 1) / ratio
	lodRows := (geom.Rows + ratio - 1) / ratio
	buf := make([]uint8, lodCols*lodRows*4)

	g.mu.RLock()
	if !g.writableLocked() || g.geom != geom {
		g.mu.RUnlock()
		return nil
	}
	for lr := 0; lr < lodRows; lr++ {
		srcRow := lr * ratio
		if srcRow >= geom.Rows {
			srcRow = geom.Rows - 1
		}
		for lc := 0; lc < lodCols; lc++ {
			srcCol := lc * ratio
			if srcCol >= geom.Cols {
				srcCol = geom.Cols - 1
			}
			si := (srcRow*geom.Cols + srcCol) * 4
			di := (lr*lodCols + lc) * 4
			copy(buf[di:di+4], g.pix[si:si+4])
		}
	}
	g.mu.RUnlock()

	lodRegenerations.Inc()
	return &LODGrid{
		geom: GridGeometry{
			OriginEasting: geom.OriginEasting,
			// Keep the top edge anchored: LOD row 0 samples detail row 0, so
			// the downsampled rectangle grows southward when rows don't
			// divide evenly.
			OriginNorthing: geom.OriginNorthing + float64(geom.Rows)*geom.CellSizeMeters -
				float64(lodRows)*float64(ratio)*geom.CellSizeMeters,
			Cols:           lodCols,
			Rows:           lodRows,
			CellSizeMeters: float64(ratio) * geom.CellSizeMeters,
		},
		ratio: ratio,
		pix:   buf,
	}
}
