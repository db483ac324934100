package coverage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticField() Bounds {
	return Bounds{MinEasting: 0, MaxEasting: 20, MinNorthing: 0, MaxNorthing: 10}
}

func TestSyntheticPassBoundsGrow(t *testing.T) {
	t.Parallel()

	p := NewSyntheticPass(syntheticField(), 2.0, RGB(0, 200, 0))

	_, ok := p.CoverageBounds()
	assert.False(t, ok, "no bounds before the machine moves")

	// Half a row in: only the first swath band is worked.
	p.Advance(10)
	b, ok := p.CoverageBounds()
	require.True(t, ok)
	assert.Equal(t, 2.0, b.MaxNorthing)

	// Into the third row.
	p.Advance(35)
	b, ok = p.CoverageBounds()
	require.True(t, ok)
	assert.Equal(t, 6.0, b.MaxNorthing)

	// Bounds clamp at the field edge.
	p.Advance(1e6)
	b, _ = p.CoverageBounds()
	assert.Equal(t, 10.0, b.MaxNorthing)
	assert.True(t, p.Done())
}

func TestSyntheticPassDeterministic(t *testing.T) {
	t.Parallel()

	region := syntheticField()
	run := func() []CellUpdate {
		p := NewSyntheticPass(syntheticField(), 2.0, RGB(0, 200, 0))
		p.Advance(37.5)
		return p.AllCells(0.5, region)
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("same advances produced different cells (-first +second):\n%s", diff)
	}
}

func TestSyntheticPassIncrementalMatchesAll(t *testing.T) {
	t.Parallel()

	region := syntheticField()

	full := NewSyntheticPass(syntheticField(), 2.0, RGB(0, 200, 0))
	full.Advance(60)
	want := cellSet(full.AllCells(0.5, region))

	inc := NewSyntheticPass(syntheticField(), 2.0, RGB(0, 200, 0))
	require.Empty(t, inc.NewCells(0.5), "no frame before AllCells")
	require.Empty(t, inc.AllCells(0.5, region))
	got := map[[2]int]bool{}
	for i := 0; i < 12; i++ {
		inc.Advance(5)
		for _, c := range inc.NewCells(0.5) {
			got[[2]int{c.Col, c.Row}] = true
		}
	}

	assert.Equal(t, want, got)
}

func TestSyntheticPassCellsLandInGrid(t *testing.T) {
	t.Parallel()

	p := NewSyntheticPass(syntheticField(), 2.0, RGB(0, 200, 0))
	p.Advance(1e6) // whole field

	g := NewCoverageGrid()
	plan, err := PlanAllocation(syntheticField(), 0.5, 5.0, 16384)
	require.NoError(t, err)
	require.NoError(t, g.Allocate(plan))

	cells := p.AllCells(0.5, g.WorldBounds())
	applied := NewIncrementalWriter(g).ApplyFull(cells)
	assert.Equal(t, applied, len(cellSet(cells)))

	// The whole field worked: every cell covered.
	assert.Equal(t, g.Geometry().CellCount(), g.CoveredCells())
}

func cellSet(cells []CellUpdate) map[[2]int]bool {
	set := map[[2]int]bool{}
	for _, c := range cells {
		set[[2]int{c.Col, c.Row}] = true
	}
	return set
}
