package coverage

import (
	"image"
	"math"
	"time"

	"golang.org/x/image/draw"

	"github.com/arable-data/fieldtrace/internal/monitoring"
)

// Camera is the view transform supplied by the shell each frame: the world
// point at the viewport centre, the zoom in pixels per metre, and the viewport
// size in pixels. Screen y grows southward.
type Camera struct {
	CenterEasting   float64
	CenterNorthing  float64
	PixelsPerMeter  float64
	ViewportWidth   int
	ViewportHeight  int
}

// FrameInfo describes one rendered frame, reported to the observer hook.
type FrameInfo struct {
	Blitted  bool
	UsedLOD  bool
	Dest     image.Rectangle
	Duration time.Duration
}

// RenderObserver receives per-frame timings. Optional; replaces any global
// frame counters so diagnostic state stays out of the render path.
type RenderObserver interface {
	ObserveRender(FrameInfo)
}

// Renderer draws the coverage layer into the shell's frame. Per frame it picks
// the detail buffer when zoomed in at or beyond the configured threshold,
// otherwise the LOD buffer, and issues exactly one nearest-neighbour blit.
// Colors are baked into the buffer; there is no per-pixel color logic and no
// per-cell draw call, which keeps render cost independent of how much area has
// been worked.
type Renderer struct {
	mgr       *CoverageManager
	threshold float64
	observer  RenderObserver
}

// NewRenderer returns a renderer over the manager's current grid. observer
// may be nil.
func NewRenderer(mgr *CoverageManager, observer RenderObserver) *Renderer {
	return &Renderer{
		mgr:       mgr,
		threshold: mgr.cfg.LODZoomThreshold,
		observer:  observer,
	}
}

// destRect maps a buffer's world rectangle through the camera transform.
func destRect(wb Bounds, cam Camera) image.Rectangle {
	ppm := cam.PixelsPerMeter
	x0 := (wb.MinEasting-cam.CenterEasting)*ppm + float64(cam.ViewportWidth)/2
	y0 := (cam.CenterNorthing-wb.MaxNorthing)*ppm + float64(cam.ViewportHeight)/2
	x1 := x0 + wb.Width()*ppm
	y1 := y0 + wb.Height()*ppm
	return image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
}

// RenderFrame blits the coverage layer into dst. A frame rendered before any
// grid exists is a no-op, not an error. The LOD path tolerates a stale buffer
// rather than waiting on a rebuild.
func (r *Renderer) RenderFrame(dst *image.RGBA, cam Camera) FrameInfo {
	start := time.Now()
	info := FrameInfo{}

	grid := r.mgr.Grid()
	if grid == nil || cam.PixelsPerMeter <= 0 {
		return r.finish(info, start)
	}
	geom := grid.Geometry()
	if geom.CellCount() == 0 {
		return r.finish(info, start)
	}

	useLOD := cam.PixelsPerMeter < r.threshold
	if useLOD {
		if lod := r.mgr.lodForRender(); lod != nil {
			info.UsedLOD = true
			info.Dest = destRect(lod.geom.WorldBounds(), cam)
			if info.Dest.Overlaps(dst.Bounds()) {
				draw.NearestNeighbor.Scale(dst, info.Dest, lod.rgba(), lod.rgba().Bounds(), draw.Over, nil)
				info.Blitted = true
			}
			grid.ConsumeRedraw()
			return r.finish(info, start)
		}
		// No LOD available yet; fall through to the detail buffer.
	}

	info.Dest = destRect(geom.WorldBounds(), cam)
	if info.Dest.Overlaps(dst.Bounds()) {
		grid.mu.RLock()
		if grid.writableLocked() && grid.geom == geom {
			src := &image.RGBA{
				Pix:    grid.pix,
				Stride: geom.Cols * 4,
				Rect:   image.Rect(0, 0, geom.Cols, geom.Rows),
			}
			draw.NearestNeighbor.Scale(dst, info.Dest, src, src.Rect, draw.Over, nil)
			info.Blitted = true
		}
		grid.mu.RUnlock()
	}
	grid.ConsumeRedraw()
	return r.finish(info, start)
}

func (r *Renderer) finish(info FrameInfo, start time.Time) FrameInfo {
	info.Duration = time.Since(start)
	renderSeconds.Observe(info.Duration.Seconds())
	if r.observer != nil {
		r.observer.ObserveRender(info)
	}
	monitoring.Debugf("[Renderer] frame blitted=%v lod=%v dest=%v in %v", info.Blitted, info.UsedLOD, info.Dest, info.Duration)
	return info
}
