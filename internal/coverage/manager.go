package coverage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arable-data/fieldtrace/internal/monitoring"
)

// Session identifies one continuous working period in a field. Snapshot rows
// carry the session ID so progress can be queried per pass.
type Session struct {
	ID        string
	FieldID   string
	StartedAt time.Time
}

// NewSession starts a session for the given field.
func NewSession(fieldID string) Session {
	return Session{
		ID:        uuid.NewString(),
		FieldID:   fieldID,
		StartedAt: time.Now(),
	}
}

// CoverageManager owns the grid lifecycle: allocation and growth from recorded
// bounds, background compositing, coalesced update processing, and the LOD
// cache. Producers signal work through MarkDirty and the background loop in
// Run picks it up; signals are last-write-wins flags, never a queue, so a slow
// tick coalesces any number of signals into one pass.
type CoverageManager struct {
	cfg *CoverageConfig

	boundsProvider BoundsProvider
	cellSource     CellSource
	background     BackgroundSource

	mu               sync.Mutex
	grid             *CoverageGrid
	writer           *IncrementalWriter
	lod              *LODGrid
	session          Session
	recordedBounds   Bounds // monotonic union of everything ever reported
	haveBounds       bool
	refusedBounds    Bounds // last union refused by the allocation limits
	haveRefusal      bool
	lastSnapshotID   *int64
	lastSnapshotTime time.Time

	pendingUpdate      atomic.Bool
	pendingFullRebuild atomic.Bool
	running            atomic.Bool
}

// NewCoverageManager wires a manager to its producers. bounds and cells are
// required; background may be nil when no base imagery exists for the field.
func NewCoverageManager(cfg *CoverageConfig, fieldID string, bounds BoundsProvider, cells CellSource, background BackgroundSource) (*CoverageManager, error) {
	if cfg == nil {
		cfg = DefaultCoverageConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CoverageManager{
		cfg:            cfg,
		boundsProvider: bounds,
		cellSource:     cells,
		background:     background,
		session:        NewSession(fieldID),
	}, nil
}

// Config returns the manager's validated configuration.
func (m *CoverageManager) Config() *CoverageConfig { return m.cfg }

// Grid returns the current grid, or nil before the first allocation.
func (m *CoverageManager) Grid() *CoverageGrid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grid
}

// Session returns the active session.
func (m *CoverageManager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// lodForRender returns the current LOD buffer without triggering a rebuild.
// Render frames tolerate a stale LOD; the update loop regenerates it.
func (m *CoverageManager) lodForRender() *LODGrid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lod
}

// MarkDirty signals that the producer has new covered cells. Safe from any
// goroutine; repeated signals before the next tick coalesce.
func (m *CoverageManager) MarkDirty() {
	m.pendingUpdate.Store(true)
}

// MarkFullRebuildNeeded signals that cached cell positions may be invalid and
// the next pass must clear and re-enumerate instead of applying increments.
func (m *CoverageManager) MarkFullRebuildNeeded() {
	m.pendingUpdate.Store(true)
	m.pendingFullRebuild.Store(true)
}

// InitializeWithBounds allocates the grid for a known field extent up front,
// composites background imagery, and replays the full producer enumeration.
// Without it the first MarkDirty tick allocates on demand.
func (m *CoverageManager) InitializeWithBounds(b Bounds) error {
	if !b.Valid() {
		return errors.New("coverage: invalid initial bounds")
	}
	m.mu.Lock()
	if m.haveBounds {
		b = b.Union(m.recordedBounds)
	}
	m.recordedBounds = b
	m.haveBounds = true
	m.mu.Unlock()
	return m.reallocate(b)
}

// Reset retires the grid and recorded bounds and starts a new session. The
// next update allocates from scratch. Used on field change.
func (m *CoverageManager) Reset(fieldID string) {
	m.mu.Lock()
	old := m.grid
	m.grid = nil
	m.writer = nil
	m.lod = nil
	m.recordedBounds = Bounds{}
	m.haveBounds = false
	m.refusedBounds = Bounds{}
	m.haveRefusal = false
	m.lastSnapshotID = nil
	m.session = NewSession(fieldID)
	m.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
	m.pendingFullRebuild.Store(false)
	m.pendingUpdate.Store(false)
	monitoring.Logf("[CoverageManager] reset for field %s", fieldID)
}

// Run processes coalesced updates on a fixed cadence until ctx is cancelled.
// Runs in its own goroutine; the render path never blocks on it.
func (m *CoverageManager) Run(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		monitoring.Logf("[CoverageManager] Run called while already running, ignoring")
		return
	}
	defer m.running.Store(false)

	monitoring.Logf("[CoverageManager] update loop started (interval %v)", m.cfg.UpdateInterval)
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[CoverageManager] update loop stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			if err := m.ProcessPendingUpdates(); err != nil {
				monitoring.Logf("[CoverageManager] update failed: %v", err)
			}
		}
	}
}

// IsRunning reports whether the update loop is active.
func (m *CoverageManager) IsRunning() bool { return m.running.Load() }

// ProcessPendingUpdates performs one pass of the update loop: grow the grid if
// recorded bounds escaped it, then apply either a full rebuild or the
// producer's incremental cells, then refresh the LOD if stale. Exported so
// tests and synchronous callers can drive the manager without the ticker.
func (m *CoverageManager) ProcessPendingUpdates() error {
	dirty := m.pendingUpdate.Swap(false)
	if dirty {
		// A growth refused by the allocation limits keeps the previous grid
		// serving, and the pass continues: cells inside the retained grid are
		// still applied below, only the excess area goes unvisualized.
		if err := m.growToRecordedBounds(); err != nil && !errors.Is(err, ErrAllocationTooLarge) {
			return err
		}
	}

	m.mu.Lock()
	grid, writer := m.grid, m.writer
	m.mu.Unlock()
	if grid == nil {
		m.refreshLOD()
		return nil
	}

	if dirty {
		cellSize := grid.Geometry().CellSizeMeters
		if m.pendingFullRebuild.Swap(false) {
			region := grid.WorldBounds()
			applied := writer.ApplyFull(m.cellSource.AllCells(cellSize, region))
			monitoring.Debugf("[CoverageManager] full rebuild applied %d cells", applied)
		} else {
			writer.ApplyIncremental(m.cellSource.NewCells(cellSize))
		}
	}

	m.refreshLOD()
	return nil
}

// growToRecordedBounds folds the provider's current bounds into the monotonic
// union and reallocates when the union escapes the grid. A union too large for
// the allocation limits is refused with ErrAllocationTooLarge and the previous
// grid keeps serving; the refused union is remembered so the same extent is
// not re-planned (or re-logged) every tick.
func (m *CoverageManager) growToRecordedBounds() error {
	if m.boundsProvider == nil {
		return nil
	}
	reported, ok := m.boundsProvider.CoverageBounds()
	if !ok || !reported.Valid() {
		return nil
	}

	m.mu.Lock()
	if m.haveBounds {
		m.recordedBounds = m.recordedBounds.Union(reported)
	} else {
		m.recordedBounds = reported
		m.haveBounds = true
	}
	union := m.recordedBounds
	grid := m.grid
	alreadyRefused := m.haveRefusal && m.refusedBounds.Contains(union)
	m.mu.Unlock()

	if grid != nil && grid.WorldBounds().Contains(union) {
		return nil
	}
	if alreadyRefused {
		return ErrAllocationTooLarge
	}
	return m.reallocate(union)
}

// reallocate plans a new grid for the bounds, composites background imagery,
// replays the full producer enumeration, and swaps the grid in. The old grid
// keeps serving renders until the swap.
func (m *CoverageManager) reallocate(b Bounds) error {
	plan, err := PlanAllocation(b, m.cfg.CellSizeMeters, m.cfg.MaxCellSizeMeters, m.cfg.MaxGridDimension)
	if err != nil {
		if errors.Is(err, ErrAllocationTooLarge) {
			allocationRefusals.Inc()
			m.mu.Lock()
			m.refusedBounds = b
			m.haveRefusal = true
			m.mu.Unlock()
			monitoring.Logf("[CoverageManager] refusing growth to %v: %v", b, err)
		}
		return err
	}

	grid := NewCoverageGrid()
	if err := grid.Allocate(plan); err != nil {
		return err
	}

	if m.background != nil {
		if img, placement, err := m.background.BackgroundRaster(); err != nil {
			monitoring.Logf("[CoverageManager] background raster unavailable: %v", err)
		} else {
			SeedFromRaster(grid, img, placement)
		}
	}

	writer := NewIncrementalWriter(grid)
	if m.cellSource != nil {
		applied := writer.ApplyFull(m.cellSource.AllCells(plan.CellSizeMeters, plan.WorldBounds()))
		monitoring.Debugf("[CoverageManager] post-allocation rebuild applied %d cells", applied)
	}

	m.mu.Lock()
	old := m.grid
	m.grid = grid
	m.writer = writer
	m.lod = nil
	m.haveRefusal = false
	m.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
	m.pendingFullRebuild.Store(false)
	m.refreshLOD()
	return nil
}

// refreshLOD rebuilds the LOD buffer when the grid has changed since the last
// build, swapping the immutable result in atomically. Renders in flight keep
// the old pointer.
func (m *CoverageManager) refreshLOD() {
	m.mu.Lock()
	grid := m.grid
	m.mu.Unlock()
	if grid == nil || !grid.lodStale() {
		return
	}
	fresh := regenerateLOD(grid, m.cfg.LODRatio)
	if fresh == nil {
		return
	}
	grid.clearLODDirty()
	m.mu.Lock()
	if m.grid == grid {
		m.lod = fresh
	}
	m.mu.Unlock()
}
