package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsUnion(t *testing.T) {
	t.Parallel()

	a := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	b := Bounds{MinEasting: 5, MaxEasting: 20, MinNorthing: -5, MaxNorthing: 8}

	u := a.Union(b)
	assert.Equal(t, Bounds{MinEasting: 0, MaxEasting: 20, MinNorthing: -5, MaxNorthing: 10}, u)

	// Union with a zero-value operand returns the other side unchanged.
	assert.Equal(t, a, a.Union(Bounds{}))
	assert.Equal(t, a, Bounds{}.Union(a))
}

func TestBoundsContains(t *testing.T) {
	t.Parallel()

	outer := Bounds{MinEasting: 0, MaxEasting: 100, MinNorthing: 0, MaxNorthing: 100}
	assert.True(t, outer.Contains(Bounds{MinEasting: 10, MaxEasting: 90, MinNorthing: 10, MaxNorthing: 90}))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(Bounds{MinEasting: 10, MaxEasting: 101, MinNorthing: 10, MaxNorthing: 90}))

	assert.True(t, outer.ContainsPoint(50, 50))
	assert.True(t, outer.ContainsPoint(0, 100))
	assert.False(t, outer.ContainsPoint(-0.1, 50))
}

func TestPlanAllocationFinestCell(t *testing.T) {
	t.Parallel()

	// A 500x300m field fits at the finest cell size.
	b := Bounds{MinEasting: 1000, MaxEasting: 1500, MinNorthing: 2000, MaxNorthing: 2300}
	plan, err := PlanAllocation(b, 0.1, 5.0, 16384)
	require.NoError(t, err)

	assert.Equal(t, 5000, plan.Cols)
	assert.Equal(t, 3000, plan.Rows)
	assert.Equal(t, 0.1, plan.CellSizeMeters)
	assert.Equal(t, 1000.0, plan.OriginEasting)
	assert.Equal(t, 2000.0, plan.OriginNorthing)
	assert.True(t, plan.WorldBounds().Contains(b))
}

func TestPlanAllocationCoarsens(t *testing.T) {
	t.Parallel()

	// A 50km span cannot fit 16384 cells at 0.1m; the cell size doubles until
	// it does: 0.1 -> 0.2 -> ... -> 3.2m gives 15625 cells per axis.
	b := Bounds{MinEasting: 0, MaxEasting: 50000, MinNorthing: 0, MaxNorthing: 50000}
	plan, err := PlanAllocation(b, 0.1, 5.0, 16384)
	require.NoError(t, err)

	assert.Equal(t, 3.2, plan.CellSizeMeters)
	assert.Equal(t, 15625, plan.Cols)
	assert.Equal(t, 15625, plan.Rows)
	assert.LessOrEqual(t, plan.Cols, 16384)
	assert.LessOrEqual(t, plan.Rows, 16384)
}

func TestPlanAllocationRefusesBeyondMaxCell(t *testing.T) {
	t.Parallel()

	// 200km at a 5m cap would need 40000 cells per axis. Refused.
	b := Bounds{MinEasting: 0, MaxEasting: 200000, MinNorthing: 0, MaxNorthing: 200000}
	_, err := PlanAllocation(b, 0.1, 5.0, 16384)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllocationTooLarge)
}

func TestPlanAllocationTinyExtent(t *testing.T) {
	t.Parallel()

	// An extent smaller than one cell still yields a 1x1 grid.
	b := Bounds{MinEasting: 0, MaxEasting: 0.05, MinNorthing: 0, MaxNorthing: 0.02}
	plan, err := PlanAllocation(b, 0.1, 5.0, 16384)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Cols)
	assert.Equal(t, 1, plan.Rows)
}

func TestPlanAllocationInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := PlanAllocation(Bounds{}, 0.1, 5.0, 16384)
	assert.Error(t, err)

	b := Bounds{MinEasting: 0, MaxEasting: 10, MinNorthing: 0, MaxNorthing: 10}
	_, err = PlanAllocation(b, 0, 5.0, 16384)
	assert.Error(t, err)
	_, err = PlanAllocation(b, 0.1, 5.0, 0)
	assert.Error(t, err)
}
