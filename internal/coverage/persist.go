package coverage

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arable-data/fieldtrace/internal/monitoring"
)

// ErrSnapshotFormat reports a persisted blob whose header does not match the
// expected geometry. Recoverable: the caller may fall back to an empty grid.
var ErrSnapshotFormat = errors.New("coverage: snapshot format mismatch")

// snapshotMagic and snapshotVersion identify the blob layout: a little-endian
// header (magic, version, cols, rows, cellSize, origin) followed by the raw
// row-major RGBA buffer, all gzip-compressed.
var snapshotMagic = [4]byte{'F', 'T', 'C', 'V'}

const snapshotVersion uint16 = 1

// maxSnapshotDimension bounds the decompressed allocation a header can demand
// before the body is read. Twice the default allocation cap; no grid Allocate
// ever accepted can exceed it, so anything larger is a corrupt header.
const maxSnapshotDimension = 2 * DefaultMaxGridDimension

type snapshotHeader struct {
	Magic          [4]byte
	Version        uint16
	_              uint16 // pad to keep the header 8-byte aligned
	Cols           uint32
	Rows           uint32
	CellSizeMeters float64
	OriginEasting  float64
	OriginNorthing float64
}

// encodeSnapshotBlob compresses the grid geometry and raw buffer into an
// opaque blob.
func encodeSnapshotBlob(geom GridGeometry, pix []uint8) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	hdr := snapshotHeader{
		Magic:          snapshotMagic,
		Version:        snapshotVersion,
		Cols:           uint32(geom.Cols),
		Rows:           uint32(geom.Rows),
		CellSizeMeters: geom.CellSizeMeters,
		OriginEasting:  geom.OriginEasting,
		OriginNorthing: geom.OriginNorthing,
	}
	if err := binary.Write(gz, binary.LittleEndian, &hdr); err != nil {
		gz.Close()
		return nil, err
	}
	if _, err := gz.Write(pix); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSnapshotBlob validates the header and returns the stored geometry and
// raw buffer. A malformed header or a buffer whose length disagrees with the
// recorded dimensions fails with ErrSnapshotFormat rather than being guessed at.
func decodeSnapshotBlob(blob []byte) (GridGeometry, []uint8, error) {
	if len(blob) == 0 {
		return GridGeometry{}, nil, fmt.Errorf("%w: empty blob", ErrSnapshotFormat)
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return GridGeometry{}, nil, fmt.Errorf("%w: %v", ErrSnapshotFormat, err)
	}
	defer gz.Close()

	var hdr snapshotHeader
	if err := binary.Read(gz, binary.LittleEndian, &hdr); err != nil {
		return GridGeometry{}, nil, fmt.Errorf("%w: short header: %v", ErrSnapshotFormat, err)
	}
	if hdr.Magic != snapshotMagic {
		return GridGeometry{}, nil, fmt.Errorf("%w: bad magic %q", ErrSnapshotFormat, hdr.Magic[:])
	}
	if hdr.Version != snapshotVersion {
		return GridGeometry{}, nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotFormat, hdr.Version)
	}
	geom := GridGeometry{
		OriginEasting:  hdr.OriginEasting,
		OriginNorthing: hdr.OriginNorthing,
		Cols:           int(hdr.Cols),
		Rows:           int(hdr.Rows),
		CellSizeMeters: hdr.CellSizeMeters,
	}
	if geom.Cols < 1 || geom.Rows < 1 || geom.CellSizeMeters <= 0 {
		return GridGeometry{}, nil, fmt.Errorf("%w: invalid geometry %+v", ErrSnapshotFormat, geom)
	}
	if geom.Cols > maxSnapshotDimension || geom.Rows > maxSnapshotDimension {
		return GridGeometry{}, nil, fmt.Errorf("%w: dimensions %dx%d exceed %d per axis", ErrSnapshotFormat, geom.Cols, geom.Rows, maxSnapshotDimension)
	}
	want := geom.CellCount() * 4
	pix := make([]uint8, want)
	if _, err := io.ReadFull(gz, pix); err != nil {
		return GridGeometry{}, nil, fmt.Errorf("%w: buffer shorter than the %d bytes the header implies: %v", ErrSnapshotFormat, want, err)
	}
	if n, _ := gz.Read(make([]byte, 1)); n != 0 {
		return GridGeometry{}, nil, fmt.Errorf("%w: buffer longer than the %d bytes the header implies", ErrSnapshotFormat, want)
	}
	return geom, pix, nil
}

// CoverageSnapshot matches the coverage_snapshots table structure. It holds a
// compressed snapshot of the grid plus enough metadata to query progress
// without decoding the blob.
type CoverageSnapshot struct {
	SnapshotID        *int64 // set by the database after insert
	FieldID           string
	SessionID         string
	TakenUnixNanos    int64
	Cols              int
	Rows              int
	CellSizeMeters    float64
	MinEasting        float64
	MinNorthing       float64
	ParamsJSON        string
	GridBlob          []byte
	CoveredCells      int
	ChangedCellsCount int
	SnapshotReason    string // 'periodic_flush', 'final_flush', 'manual', ...
}

// SnapshotStore is the interface required to persist CoverageSnapshot records.
// Implemented by coveragedb.CoverageDB.
type SnapshotStore interface {
	InsertCoverageSnapshot(s *CoverageSnapshot) (int64, error)
}

// Persist serialises the current grid and writes a CoverageSnapshot via the
// provided store. Buffer copy happens under the read lock; compression and
// I/O happen outside it. Change counts accumulated while the snapshot was
// being written are preserved.
func (m *CoverageManager) Persist(store SnapshotStore, reason string) error {
	if m == nil || store == nil {
		return nil
	}
	grid := m.Grid()
	if grid == nil {
		return nil
	}
	geom, pix, ok := grid.snapshotBuffer()
	if !ok {
		return nil
	}
	covered := grid.CoveredCells()
	changesSince := grid.ChangesSinceSnapshot()

	blob, err := encodeSnapshotBlob(geom, pix)
	if err != nil {
		return err
	}

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	snap := &CoverageSnapshot{
		FieldID:           session.FieldID,
		SessionID:         session.ID,
		TakenUnixNanos:    time.Now().UnixNano(),
		Cols:              geom.Cols,
		Rows:              geom.Rows,
		CellSizeMeters:    geom.CellSizeMeters,
		MinEasting:        geom.OriginEasting,
		MinNorthing:       geom.OriginNorthing,
		ParamsJSON:        "{}",
		GridBlob:          blob,
		CoveredCells:      covered,
		ChangedCellsCount: changesSince,
		SnapshotReason:    reason,
	}

	id, err := store.InsertCoverageSnapshot(snap)
	if err != nil {
		return err
	}

	grid.consumeSnapshotChanges(changesSince)
	m.mu.Lock()
	m.lastSnapshotID = &id
	m.lastSnapshotTime = time.Now()
	m.mu.Unlock()

	monitoring.Logf("[CoverageManager] persisted snapshot: field=%s reason=%s covered=%d/%d blob=%d bytes",
		session.FieldID, reason, covered, geom.CellCount(), len(blob))
	snapshotBytes.Observe(float64(len(blob)))
	return nil
}

// Restore rebuilds the grid from a stored snapshot: Allocate with the stored
// geometry, then copy the buffer back verbatim, bypassing the Compositor and
// IncrementalWriter. Load cost is O(buffer size), not O(recorded history). A
// header that disagrees with the snapshot row's geometry fails with
// ErrSnapshotFormat.
func (m *CoverageManager) Restore(snap *CoverageSnapshot) error {
	if snap == nil {
		return fmt.Errorf("coverage: nil snapshot")
	}
	geom, pix, err := decodeSnapshotBlob(snap.GridBlob)
	if err != nil {
		return err
	}
	if geom.Cols != snap.Cols || geom.Rows != snap.Rows ||
		geom.CellSizeMeters != snap.CellSizeMeters ||
		geom.OriginEasting != snap.MinEasting || geom.OriginNorthing != snap.MinNorthing {
		return fmt.Errorf("%w: blob header %+v disagrees with snapshot row %dx%d at %.3fm",
			ErrSnapshotFormat, geom, snap.Cols, snap.Rows, snap.CellSizeMeters)
	}
	return m.SetPixelBuffer(PixelBuffer{Geometry: geom, Pix: pix})
}

// PixelBuffer is raw access to the backing buffer for persistence callers.
type PixelBuffer struct {
	Geometry GridGeometry
	Pix      []uint8
}

// GetPixelBuffer copies out the raw buffer and its geometry. ok is false
// before the first allocation.
func (m *CoverageManager) GetPixelBuffer() (PixelBuffer, bool) {
	grid := m.Grid()
	if grid == nil {
		return PixelBuffer{}, false
	}
	geom, pix, ok := grid.snapshotBuffer()
	if !ok {
		return PixelBuffer{}, false
	}
	return PixelBuffer{Geometry: geom, Pix: pix}, true
}

// SetPixelBuffer replaces the grid with the given geometry and verbatim
// buffer, bypassing the normal write path. The recorded bounds become the
// buffer's world rectangle.
func (m *CoverageManager) SetPixelBuffer(pb PixelBuffer) error {
	if len(pb.Pix) != pb.Geometry.CellCount()*4 {
		return fmt.Errorf("%w: buffer is %d bytes, geometry implies %d", ErrSnapshotFormat, len(pb.Pix), pb.Geometry.CellCount()*4)
	}
	grid := NewCoverageGrid()
	if err := grid.Allocate(AllocationPlan{
		OriginEasting:  pb.Geometry.OriginEasting,
		OriginNorthing: pb.Geometry.OriginNorthing,
		Cols:           pb.Geometry.Cols,
		Rows:           pb.Geometry.Rows,
		CellSizeMeters: pb.Geometry.CellSizeMeters,
	}); err != nil {
		return err
	}
	if err := grid.restoreBuffer(pb.Pix); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.grid
	m.grid = grid
	m.lod = nil
	m.recordedBounds = pb.Geometry.WorldBounds()
	m.haveBounds = true
	m.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
	return nil
}
