// coverage-report renders an HTML progress report for a field from its stored
// snapshots: covered area over time plus per-snapshot change counts.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/arable-data/fieldtrace/internal/coverage/monitor"
	"github.com/arable-data/fieldtrace/internal/coveragedb"
)

func main() {
	dbPath := flag.String("db", "coverage.db", "Path to the coverage database")
	fieldID := flag.String("field", "field-sim", "Field ID to report on")
	outPath := flag.String("out", "coverage-report.html", "Output HTML path")
	limit := flag.Int("limit", 0, "Max snapshots to include (0 = all)")
	flag.Parse()

	db, err := coveragedb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	metas, err := db.ListSnapshotMeta(*fieldID, *limit)
	if err != nil {
		log.Fatalf("list snapshots: %v", err)
	}
	if len(metas) == 0 {
		log.Fatalf("no snapshots recorded for field %s", *fieldID)
	}

	points := make([]monitor.SnapshotPoint, 0, len(metas))
	for _, m := range metas {
		points = append(points, monitor.SnapshotPoint{
			Taken:        m.Taken,
			CoveredCells: m.CoveredCells,
			CellSizeM:    m.CellSizeM,
			ChangedCells: m.ChangedCells,
			Reason:       m.Reason,
		})
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	if err := monitor.WriteProgressReport(f, *fieldID, points); err != nil {
		log.Fatalf("write report: %v", err)
	}
	log.Printf("wrote report for %s (%d snapshots) -> %s", *fieldID, len(points), *outPath)
}
