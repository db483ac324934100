package coverage

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProducer implements BoundsProvider and CellSource with fixed data.
type scriptedProducer struct {
	mu     sync.Mutex
	bounds Bounds
	all    []CellUpdate
	fresh  []CellUpdate
}

func (p *scriptedProducer) CoverageBounds() (Bounds, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds, p.bounds.Valid()
}

func (p *scriptedProducer) AllCells(cellSize float64, region Bounds) []CellUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.all
}

func (p *scriptedProducer) NewCells(cellSize float64) []CellUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.fresh
	p.fresh = nil
	return out
}

func (p *scriptedProducer) set(bounds Bounds, all, fresh []CellUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bounds = bounds
	p.all = all
	p.fresh = fresh
}

// staticBackground implements BackgroundSource with a solid raster.
type staticBackground struct {
	img       image.Image
	placement Bounds
}

func (b *staticBackground) BackgroundRaster() (image.Image, Bounds, error) {
	return b.img, b.placement, nil
}

func TestManagerInitializeWithBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultCoverageConfig().WithCellSize(0.5)
	m, err := NewCoverageManager(cfg, "field-1", nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Grid())

	require.NoError(t, m.InitializeWithBounds(Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 5}))
	grid := m.Grid()
	require.NotNil(t, grid)
	assert.Equal(t, 20, grid.Geometry().Cols)
	assert.Equal(t, 10, grid.Geometry().Rows)
	assert.NotNil(t, m.lodForRender())
}

func TestManagerMarkDirtyAppliesIncrement(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	bounds := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	producer.set(bounds, nil, nil)

	cfg := DefaultCoverageConfig().WithCellSize(0.5)
	m, err := NewCoverageManager(cfg, "field-1", producer, producer, nil)
	require.NoError(t, err)

	// First dirty tick allocates from the provider's bounds.
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	grid := m.Grid()
	require.NotNil(t, grid)
	require.Equal(t, 20, grid.Geometry().Cols)

	// Next tick applies the incremental batch.
	producer.set(bounds, nil, []CellUpdate{
		{Col: 1, Row: 1, Color: RGB(0, 200, 0)},
		{Col: 2, Row: 1, Color: RGB(0, 200, 0)},
	})
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Equal(t, 2, grid.CoveredCells())

	// A tick without MarkDirty does nothing.
	producer.set(bounds, nil, []CellUpdate{{Col: 9, Row: 9, Color: RGB(0, 200, 0)}})
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Equal(t, 2, grid.CoveredCells())
}

func TestManagerCoalescesSignals(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	bounds := Bounds{MinEasting: 0, MaxEasting: 5, MinNorthing: 0, MaxNorthing: 5}
	producer.set(bounds, nil, nil)

	m, err := NewCoverageManager(DefaultCoverageConfig().WithCellSize(0.5), "field-1", producer, producer, nil)
	require.NoError(t, err)

	// Many signals, one pass.
	for i := 0; i < 100; i++ {
		m.MarkDirty()
	}
	require.NoError(t, m.ProcessPendingUpdates())
	first := m.Grid()
	require.NotNil(t, first)

	// The flag was consumed; the next tick is a no-op.
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Same(t, first, m.Grid())
}

func TestManagerGrowsGridWhenBoundsEscape(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	small := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	producer.set(small, nil, nil)

	m, err := NewCoverageManager(DefaultCoverageConfig().WithCellSize(0.5), "field-1", producer, producer, nil)
	require.NoError(t, err)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	first := m.Grid()
	require.NotNil(t, first)

	// The machine drives beyond the grid; on reallocation the producer's full
	// enumeration is replayed.
	grown := Bounds{MinEasting: 0, MaxEasting: 30, MinNorthing: 0, MaxNorthing: 10}
	producer.set(grown, []CellUpdate{
		{Col: 0, Row: 0, Color: RGB(0, 200, 0)},
		{Col: 59, Row: 19, Color: RGB(0, 200, 0)},
	}, nil)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())

	grid := m.Grid()
	require.NotSame(t, first, grid)
	assert.Equal(t, 60, grid.Geometry().Cols)
	assert.Equal(t, 2, grid.CoveredCells())
	assert.Equal(t, GridDisposed, first.State())

	// Bounds are monotonic: a provider retreating to a smaller extent never
	// shrinks the grid.
	producer.set(small, nil, nil)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Same(t, grid, m.Grid())
}

func TestManagerRefusesOversizedGrowth(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	ok := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	producer.set(ok, nil, nil)

	cfg := DefaultCoverageConfig().WithCellSize(0.5).WithMaxCellSize(1.0).WithMaxGridDimension(100)
	m, err := NewCoverageManager(cfg, "field-1", producer, producer, nil)
	require.NoError(t, err)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	prev := m.Grid()
	require.NotNil(t, prev)

	// 1km at a 1m cell cap needs 1000 cells per axis; the 100 cap refuses.
	// The refusal is absorbed: the tick completes and the previous grid keeps
	// serving.
	producer.set(Bounds{MinEasting: 0, MaxEasting: 1000, MinNorthing: 0, MaxNorthing: 1000}, nil, nil)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Same(t, prev, m.Grid())
	assert.NotEqual(t, GridDisposed, prev.State())
}

func TestManagerKeepsRecordingAfterRefusedGrowth(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	ok := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	producer.set(ok, nil, nil)

	cfg := DefaultCoverageConfig().WithCellSize(0.5).WithMaxCellSize(1.0).WithMaxGridDimension(100)
	m, err := NewCoverageManager(cfg, "field-1", producer, producer, nil)
	require.NoError(t, err)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	grid := m.Grid()
	require.NotNil(t, grid)

	// A stray oversized bounds report gets refused.
	huge := Bounds{MinEasting: 0, MaxEasting: 1000, MinNorthing: 0, MaxNorthing: 1000}
	producer.set(huge, nil, nil)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	require.Same(t, grid, m.Grid())

	// Work inside the retained grid keeps being recorded on later ticks; only
	// the excess area goes unvisualized.
	producer.set(huge, nil, []CellUpdate{{Col: 3, Row: 3, Color: RGB(0, 200, 0)}})
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Equal(t, 1, grid.CoveredCells())
	assert.Equal(t, RGB(0, 200, 0), grid.ReadCell(3, 3))

	producer.set(huge, nil, []CellUpdate{{Col: 4, Row: 3, Color: RGB(0, 200, 0)}})
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	assert.Equal(t, 2, grid.CoveredCells())

	// Allocation is retried once the refused extent is superseded by a reset.
	m.Reset("field-1")
	producer.set(ok, nil, nil)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	require.NotNil(t, m.Grid())
	assert.NotSame(t, grid, m.Grid())
}

func TestManagerFullRebuild(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	bounds := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	producer.set(bounds, nil, nil)

	m, err := NewCoverageManager(DefaultCoverageConfig().WithCellSize(0.5), "field-1", producer, producer, nil)
	require.NoError(t, err)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())
	grid := m.Grid()

	NewIncrementalWriter(grid).ApplyIncremental([]CellUpdate{{Col: 5, Row: 5, Color: RGB(200, 0, 0)}})
	require.Equal(t, 1, grid.CoveredCells())

	producer.set(bounds, []CellUpdate{{Col: 0, Row: 0, Color: RGB(0, 200, 0)}}, nil)
	m.MarkFullRebuildNeeded()
	require.NoError(t, m.ProcessPendingUpdates())

	assert.Equal(t, 1, grid.CoveredCells())
	assert.Equal(t, RGB(0, 200, 0), grid.ReadCell(0, 0))
	assert.Equal(t, CellEmpty, grid.ReadCell(5, 5))
}

func TestManagerCompositesBackgroundOnAllocation(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	bounds := Bounds{MinEasting: 0, MaxEasting: 5, MinNorthing: 0, MaxNorthing: 5}
	producer.set(bounds, nil, nil)

	bg := &staticBackground{
		img:       solidRaster(8, 8, color.RGBA{R: 120, G: 90, B: 60, A: 255}),
		placement: bounds,
	}

	m, err := NewCoverageManager(DefaultCoverageConfig().WithCellSize(0.5), "field-1", producer, producer, bg)
	require.NoError(t, err)
	m.MarkDirty()
	require.NoError(t, m.ProcessPendingUpdates())

	grid := m.Grid()
	require.NotNil(t, grid)
	assert.Equal(t, RGB(120, 90, 60), grid.ReadCell(0, 0))
	assert.Equal(t, 0, grid.CoveredCells())
}

func TestManagerReset(t *testing.T) {
	t.Parallel()

	m := testManager(t, 10, 10)
	grid := m.Grid()
	require.NotNil(t, grid)
	firstSession := m.Session()

	m.Reset("field-2")
	assert.Nil(t, m.Grid())
	assert.Nil(t, m.lodForRender())
	assert.Equal(t, GridDisposed, grid.State())

	next := m.Session()
	assert.Equal(t, "field-2", next.FieldID)
	assert.NotEqual(t, firstSession.ID, next.ID)
}

func TestManagerRunProcessesTicks(t *testing.T) {
	t.Parallel()

	producer := &scriptedProducer{}
	producer.set(Bounds{MinEasting: 0, MaxEasting: 5, MinNorthing: 0, MaxNorthing: 5}, nil, nil)

	cfg := DefaultCoverageConfig().WithCellSize(0.5).WithUpdateInterval(5 * time.Millisecond)
	m, err := NewCoverageManager(cfg, "field-1", producer, producer, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.MarkDirty()
	require.Eventually(t, func() bool {
		return m.Grid() != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, m.IsRunning())
}

func TestManagerStats(t *testing.T) {
	t.Parallel()

	m := testManager(t, 20, 20)
	m.Grid().WriteCell(0, 0, RGB(0, 200, 0))
	m.Grid().WriteCell(1, 0, RGB(0, 200, 0))

	st := m.Stats()
	assert.Equal(t, "field-1", st.FieldID)
	assert.Equal(t, 400, st.TotalCells)
	assert.Equal(t, 2, st.CoveredCells)
	assert.InDelta(t, 0.5, st.CoveredAreaM2, 1e-9) // 2 cells of 0.25 m²
	assert.InDelta(t, 0.005, st.CoveredFraction, 1e-9)
	assert.NotEmpty(t, st.CoveredArea())
}
