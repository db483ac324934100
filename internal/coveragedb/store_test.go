package coveragedb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arable-data/fieldtrace/internal/coverage"
)

func openTestDB(t *testing.T) *CoverageDB {
	t.Helper()
	db, _ := openTestDBAt(t)
	return db
}

func openTestDBAt(t *testing.T) (*CoverageDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func testSnapshot(fieldID, sessionID string, takenNanos int64, covered int) *coverage.CoverageSnapshot {
	return &coverage.CoverageSnapshot{
		FieldID:           fieldID,
		SessionID:         sessionID,
		TakenUnixNanos:    takenNanos,
		Cols:              100,
		Rows:              80,
		CellSizeMeters:    0.1,
		MinEasting:        1000,
		MinNorthing:       2000,
		ParamsJSON:        "{}",
		GridBlob:          []byte{1, 2, 3, 4},
		CoveredCells:      covered,
		ChangedCellsCount: covered,
		SnapshotReason:    "periodic_flush",
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	t.Parallel()

	db, path := openTestDBAt(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
	require.NoError(t, db.Close())

	// Reopening the same file is a no-op migration, not an error.
	db2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db2.Close())
}

func TestInsertAndGetSnapshot(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	snap := testSnapshot("field-1", "session-a", time.Now().UnixNano(), 42)

	id, err := db.InsertCoverageSnapshot(snap)
	require.NoError(t, err)
	assert.Positive(t, id)
	require.NotNil(t, snap.SnapshotID)
	assert.Equal(t, id, *snap.SnapshotID)

	got, err := db.GetCoverageSnapshotByID(id)
	require.NoError(t, err)
	assert.Equal(t, "field-1", got.FieldID)
	assert.Equal(t, "session-a", got.SessionID)
	assert.Equal(t, 100, got.Cols)
	assert.Equal(t, 80, got.Rows)
	assert.Equal(t, 0.1, got.CellSizeMeters)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.GridBlob)
	assert.Equal(t, 42, got.CoveredCells)
	assert.Equal(t, "periodic_flush", got.SnapshotReason)
}

func TestInsertNilSnapshot(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	id, err := db.InsertCoverageSnapshot(nil)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestGetLatestCoverageSnapshot(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	base := time.Now().UnixNano()
	for i, covered := range []int{10, 20, 30} {
		_, err := db.InsertCoverageSnapshot(testSnapshot("field-1", "session-a", base+int64(i)*1e9, covered))
		require.NoError(t, err)
	}
	_, err := db.InsertCoverageSnapshot(testSnapshot("field-2", "session-b", base+10e9, 999))
	require.NoError(t, err)

	got, err := db.GetLatestCoverageSnapshot("field-1")
	require.NoError(t, err)
	assert.Equal(t, 30, got.CoveredCells)

	_, err = db.GetLatestCoverageSnapshot("field-nope")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestGetSnapshotByIDNotFound(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	_, err := db.GetCoverageSnapshotByID(12345)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestListSnapshotMeta(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	base := time.Now().UnixNano()
	for i := 0; i < 5; i++ {
		_, err := db.InsertCoverageSnapshot(testSnapshot("field-1", "session-a", base+int64(i)*1e9, (i+1)*10))
		require.NoError(t, err)
	}

	metas, err := db.ListSnapshotMeta("field-1", 0)
	require.NoError(t, err)
	require.Len(t, metas, 5)
	assert.Equal(t, 10, metas[0].CoveredCells)
	assert.Equal(t, 50, metas[4].CoveredCells)
	assert.Equal(t, 4, metas[0].BlobBytes)
	assert.True(t, metas[4].Taken.After(metas[0].Taken))

	limited, err := db.ListSnapshotMeta("field-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	empty, err := db.ListSnapshotMeta("field-nope", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPruneSnapshotsKeepsLatest(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		_, err := db.InsertCoverageSnapshot(testSnapshot("field-1", "session-a", base.Add(time.Duration(i)*time.Minute).UnixNano(), i))
		require.NoError(t, err)
	}

	// Cutoff after every snapshot: all but the newest go.
	deleted, err := db.PruneSnapshots("field-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	metas, err := db.ListSnapshotMeta("field-1", 0)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 3, metas[0].CoveredCells)
}

// End-to-end: persist a real grid through the manager, restore from the row.
func TestSnapshotRoundTripThroughStore(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	cfg := coverage.DefaultCoverageConfig().WithCellSize(0.5)
	mgr, err := coverage.NewCoverageManager(cfg, "field-9", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.InitializeWithBounds(coverage.Bounds{
		MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10,
	}))
	mgr.Grid().WriteCell(3, 3, coverage.RGB(0, 200, 0))
	require.NoError(t, mgr.Persist(db, "manual"))

	snap, err := db.GetLatestCoverageSnapshot("field-9")
	require.NoError(t, err)

	restored, err := coverage.NewCoverageManager(cfg, "field-9", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, coverage.RGB(0, 200, 0), restored.Grid().ReadCell(3, 3))
	assert.Equal(t, 1, restored.Grid().CoveredCells())
}
