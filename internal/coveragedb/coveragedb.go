// Package coveragedb stores coverage snapshots in SQLite. It owns the schema
// migrations and implements coverage.SnapshotStore; no other package issues
// SQL against the snapshot tables.
package coveragedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// CoverageDB wraps the SQLite connection for the coverage store.
type CoverageDB struct {
	*sql.DB
}

// Open opens (creating if needed) the coverage database at path and runs all
// pending migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*CoverageDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open coverage db: %w", err)
	}

	// Snapshot blobs are written from a background goroutine while readers
	// query progress; WAL keeps those from blocking each other.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	cdb := &CoverageDB{db}
	if err := cdb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return cdb, nil
}
