package coveragedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arable-data/fieldtrace/internal/coverage"
)

// ErrNoSnapshot is returned when a query matches no stored snapshot.
var ErrNoSnapshot = errors.New("coveragedb: no snapshot found")

// InsertCoverageSnapshot persists a snapshot into the coverage_snapshots table
// and returns the new snapshot_id. Implements coverage.SnapshotStore.
func (db *CoverageDB) InsertCoverageSnapshot(s *coverage.CoverageSnapshot) (int64, error) {
	if s == nil {
		return 0, nil
	}
	stmt := `INSERT INTO coverage_snapshots (field_id, session_id, taken_unix_nanos, cols, rows, cell_size_m, min_easting, min_northing, params_json, grid_blob, covered_cells, changed_cells_count, snapshot_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.Exec(stmt, s.FieldID, s.SessionID, s.TakenUnixNanos, s.Cols, s.Rows, s.CellSizeMeters,
		s.MinEasting, s.MinNorthing, s.ParamsJSON, s.GridBlob, s.CoveredCells, s.ChangedCellsCount, s.SnapshotReason)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.SnapshotID = &id
	return id, nil
}

const snapshotColumns = `snapshot_id, field_id, session_id, taken_unix_nanos, cols, rows, cell_size_m, min_easting, min_northing, params_json, grid_blob, covered_cells, changed_cells_count, snapshot_reason`

func scanSnapshot(row *sql.Row) (*coverage.CoverageSnapshot, error) {
	var s coverage.CoverageSnapshot
	var id int64
	err := row.Scan(&id, &s.FieldID, &s.SessionID, &s.TakenUnixNanos, &s.Cols, &s.Rows, &s.CellSizeMeters,
		&s.MinEasting, &s.MinNorthing, &s.ParamsJSON, &s.GridBlob, &s.CoveredCells, &s.ChangedCellsCount, &s.SnapshotReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	s.SnapshotID = &id
	return &s, nil
}

// GetLatestCoverageSnapshot returns the most recent snapshot for a field, for
// restoring the grid on app restart.
func (db *CoverageDB) GetLatestCoverageSnapshot(fieldID string) (*coverage.CoverageSnapshot, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+` FROM coverage_snapshots
		WHERE field_id = ? ORDER BY taken_unix_nanos DESC LIMIT 1`, fieldID)
	return scanSnapshot(row)
}

// GetCoverageSnapshotByID returns a specific snapshot.
func (db *CoverageDB) GetCoverageSnapshotByID(id int64) (*coverage.CoverageSnapshot, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+` FROM coverage_snapshots WHERE snapshot_id = ?`, id)
	return scanSnapshot(row)
}

// SnapshotMeta is a snapshot row without its blob, cheap to list.
type SnapshotMeta struct {
	SnapshotID   int64
	FieldID      string
	SessionID    string
	Taken        time.Time
	Cols         int
	Rows         int
	CellSizeM    float64
	CoveredCells int
	ChangedCells int
	Reason       string
	BlobBytes    int
}

// ListSnapshotMeta returns snapshot metadata for a field in time order,
// newest last. limit <= 0 lists everything.
func (db *CoverageDB) ListSnapshotMeta(fieldID string, limit int) ([]SnapshotMeta, error) {
	q := `SELECT snapshot_id, field_id, session_id, taken_unix_nanos, cols, rows, cell_size_m, covered_cells, changed_cells_count, snapshot_reason, length(grid_blob)
		FROM coverage_snapshots WHERE field_id = ? ORDER BY taken_unix_nanos`
	args := []any{fieldID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		var takenNanos int64
		if err := rows.Scan(&m.SnapshotID, &m.FieldID, &m.SessionID, &takenNanos, &m.Cols, &m.Rows,
			&m.CellSizeM, &m.CoveredCells, &m.ChangedCells, &m.Reason, &m.BlobBytes); err != nil {
			return nil, err
		}
		m.Taken = time.Unix(0, takenNanos)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots for a field older than the cutoff, keeping
// at least the most recent one regardless of age. Returns rows deleted.
func (db *CoverageDB) PruneSnapshots(fieldID string, before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM coverage_snapshots
		WHERE field_id = ? AND taken_unix_nanos < ?
		AND snapshot_id != (SELECT snapshot_id FROM coverage_snapshots WHERE field_id = ? ORDER BY taken_unix_nanos DESC LIMIT 1)`,
		fieldID, before.UnixNano(), fieldID)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}
