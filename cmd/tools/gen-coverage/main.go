// gen-coverage simulates a machine working a rectangular field and records
// the resulting coverage: snapshots into SQLite and, optionally, progress
// plots. Useful for generating realistic data without hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arable-data/fieldtrace/internal/coverage"
	"github.com/arable-data/fieldtrace/internal/coverage/monitor"
	"github.com/arable-data/fieldtrace/internal/coveragedb"
	"github.com/arable-data/fieldtrace/internal/units"
	"github.com/arable-data/fieldtrace/internal/version"
)

func main() {
	dbPath := flag.String("db", "coverage.db", "Path to the coverage database")
	fieldID := flag.String("field", "field-sim", "Field ID to record against")
	width := flag.Float64("width", 400, "Field width in metres (easting)")
	height := flag.Float64("height", 250, "Field height in metres (northing)")
	swath := flag.Float64("swath", 12, "Implement swath width in metres")
	cellSize := flag.Float64("cell", 0.1, "Finest grid cell size in metres")
	step := flag.Float64("step", 25, "Metres advanced per simulated tick")
	snapshotEvery := flag.Int("snapshot-every", 20, "Persist a snapshot every N ticks (0 disables)")
	plotsDir := flag.String("plots", "", "Directory for progress plots (empty disables)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	db, err := coveragedb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	field := coverage.Bounds{MinEasting: 0, MaxEasting: *width, MinNorthing: 0, MaxNorthing: *height}
	pass := coverage.NewSyntheticPass(field, *swath, coverage.RGB(46, 160, 67))

	cfg := coverage.DefaultCoverageConfig().WithCellSize(*cellSize)
	mgr, err := coverage.NewCoverageManager(cfg, *fieldID, pass, pass, nil)
	if err != nil {
		log.Fatalf("create manager: %v", err)
	}

	plotter := monitor.NewSessionPlotter()
	if *plotsDir != "" {
		outDir := monitor.MakePlotOutputDir(*plotsDir, *fieldID)
		if err := plotter.Start(outDir); err != nil {
			log.Fatalf("start plotter: %v", err)
		}
		log.Printf("writing plots to %s", outDir)
	}

	ticks := 0
	for !pass.Done() {
		pass.Advance(*step)
		mgr.MarkDirty()
		if err := mgr.ProcessPendingUpdates(); err != nil {
			log.Fatalf("tick %d: %v", ticks, err)
		}
		plotter.Sample(mgr)
		ticks++

		if *snapshotEvery > 0 && ticks%*snapshotEvery == 0 {
			if err := mgr.Persist(db, "periodic_flush"); err != nil {
				log.Fatalf("persist: %v", err)
			}
		}
	}
	if err := mgr.Persist(db, "final_flush"); err != nil {
		log.Fatalf("final persist: %v", err)
	}
	plotter.Stop()

	if *plotsDir != "" {
		n, err := plotter.GeneratePlots()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate plots: %v\n", err)
			os.Exit(1)
		}
		log.Printf("generated %d plots", n)
	}

	st := mgr.Stats()
	log.Printf("done: field=%s ticks=%d grid=%dx%d cell=%.2fm covered=%s (%.1f%%)",
		*fieldID, ticks, st.Cols, st.Rows, st.CellSizeMeters,
		units.FormatArea(st.CoveredAreaM2), st.CoveredFraction*100)
}
