// coverage-render restores a field's latest coverage snapshot and renders it
// to a PNG, exercising the same single-blit path the app shell uses.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"os"

	"github.com/arable-data/fieldtrace/internal/coverage"
	"github.com/arable-data/fieldtrace/internal/coveragedb"
)

func main() {
	dbPath := flag.String("db", "coverage.db", "Path to the coverage database")
	fieldID := flag.String("field", "field-sim", "Field ID to render")
	snapshotID := flag.Int64("snapshot", 0, "Snapshot ID to render (0 = latest)")
	outPath := flag.String("out", "coverage.png", "Output PNG path")
	width := flag.Int("width", 1280, "Viewport width in pixels")
	height := flag.Int("height", 800, "Viewport height in pixels")
	ppm := flag.Float64("ppm", 0, "Pixels per metre (0 = fit the grid to the viewport)")
	flag.Parse()

	db, err := coveragedb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	var snap *coverage.CoverageSnapshot
	if *snapshotID > 0 {
		snap, err = db.GetCoverageSnapshotByID(*snapshotID)
	} else {
		snap, err = db.GetLatestCoverageSnapshot(*fieldID)
	}
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}

	mgr, err := coverage.NewCoverageManager(coverage.DefaultCoverageConfig(), snap.FieldID, nil, nil, nil)
	if err != nil {
		log.Fatalf("create manager: %v", err)
	}
	if err := mgr.Restore(snap); err != nil {
		log.Fatalf("restore snapshot: %v", err)
	}

	wb := mgr.Grid().WorldBounds()
	scale := *ppm
	if scale <= 0 {
		sx := float64(*width) / wb.Width()
		sy := float64(*height) / wb.Height()
		scale = sx
		if sy < sx {
			scale = sy
		}
	}
	cam := coverage.Camera{
		CenterEasting:  (wb.MinEasting + wb.MaxEasting) / 2,
		CenterNorthing: (wb.MinNorthing + wb.MaxNorthing) / 2,
		PixelsPerMeter: scale,
		ViewportWidth:  *width,
		ViewportHeight: *height,
	}

	dst := image.NewRGBA(image.Rect(0, 0, *width, *height))
	info := coverage.NewRenderer(mgr, nil).RenderFrame(dst, cam)
	if !info.Blitted {
		log.Fatalf("nothing rendered: grid off-screen or empty")
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		log.Fatalf("encode png: %v", err)
	}

	log.Printf("rendered snapshot %d of %s: %dx%d at %.2f px/m (lod=%v) in %v -> %s",
		*snap.SnapshotID, snap.FieldID, *width, *height, scale, info.UsedLOD, info.Duration, *outPath)
}
