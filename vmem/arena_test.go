package vmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBase(t *testing.T) *Arena {
	t.Helper()
	a := Builder("base", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, a.Add(0x1000, 0x10000, 0))
	return a
}

// Scenario 1: simple best-fit.
func TestSimpleBestFit(t *testing.T) {
	a := newTestBase(t)

	addr, err := a.Alloc(0x200, BestFit)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x1000), addr)
	assert.Equal(t, uintptr(0x200), a.AmtAlloc())

	a.Free(addr, 0x200)
	assert.Equal(t, uintptr(0), a.AmtAlloc())
	require.NoError(t, a.CheckInvariants())

	// Round-trip law: a single free segment remains.
	assert.Equal(t, uintptr(0x10000), a.AmtFree())
}

// Scenario 2: next-fit wrap.
func TestNextFitWrap(t *testing.T) {
	a := Builder("nf", true, 0x100, 1, nil, nil, nil, 0)
	require.NoError(t, a.Add(0x0, 0x1000, 0))

	p1, err := a.Alloc(0x100, NextFit)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x0), p1)

	p2, err := a.Alloc(0x100, NextFit)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x100), p2)

	a.Free(p1, 0x100)

	p3, err := a.Alloc(0x100, NextFit)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x200), p3, "cursor should advance past the freed hole, not reuse it immediately")
}

// Scenario 3: xalloc alignment + phase.
func TestXallocAlignPhase(t *testing.T) {
	a := Builder("xalloc", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, a.Add(0x1000, 0x4000, 0))

	addr, err := a.Xalloc(0x100, 0x1000, 0x40, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x1040), addr)

	require.NoError(t, a.CheckInvariants())
}

// Scenario 4: nocross.
func TestXallocNocross(t *testing.T) {
	a := Builder("nocross", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, a.Add(0x0, 0x3000, 0))

	addr, err := a.Xalloc(0x800, 0x100, 0, 0x1000, 0, 0, 0)
	require.NoError(t, err)
	assert.Contains(t, []uintptr{0x0, 0x1000, 0x2000}, addr)
	assert.NotEqual(t, uintptr(0x800), addr)
}

// Scenario 5: span reclaim.
func TestSpanReclaim(t *testing.T) {
	base := Builder("base", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, base.Add(0x0, 0x100000, 0))

	var freedAddr, freedSize uintptr
	var freeCalls int
	child := Builder("child", false, 1, 1, base, base.Alloc, func(addr, size uintptr) {
		freeCalls++
		freedAddr, freedSize = addr, size
		base.Free(addr, size)
	}, 0)

	p, err := child.Alloc(0x800, 0)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x800), child.AmtAlloc())
	assert.Equal(t, uintptr(0x1000), child.AmtTotal(), "import pulls in exactly one page-sized span")

	child.Free(p, 0x800)

	assert.Equal(t, 1, freeCalls, "span must be returned to source exactly once")
	assert.Equal(t, uintptr(0x1000), freedSize)
	assert.Equal(t, uintptr(0), child.AmtTotal(), "child's own bookkeeping drops the returned span")
	_ = freedAddr
}

func TestConstraintSoundnessFuzzLite(t *testing.T) {
	a := Builder("constrained", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, a.Add(0x0, 0x100000, 0))

	cases := []struct {
		size, align, phase, nocross uintptr
	}{
		{0x10, 0x10, 0x4, 0},
		{0x40, 0x40, 0, 0x1000},
		{0x8, 0x8, 0x3, 0x100},
	}
	for _, c := range cases {
		addr, err := a.Xalloc(c.size, c.align, c.phase, c.nocross, 0, 0, 0)
		require.NoError(t, err)
		if c.align > 0 {
			assert.Equal(t, c.phase%c.align, addr%c.align)
		}
		if c.nocross > 0 {
			assert.False(t, crosses(addr, c.size, c.nocross))
		}
	}
}

func TestFreeUnmappedPanics(t *testing.T) {
	a := newTestBase(t)
	assert.Panics(t, func() { a.Free(0xdeadbeef, 0x10) })
}

func TestFreeWrongSizePanics(t *testing.T) {
	a := newTestBase(t)
	p, err := a.Alloc(0x100, 0)
	require.NoError(t, err)
	assert.Panics(t, func() { a.Free(p, 0x200) })
}

func TestAddOnSourcedArenaRejected(t *testing.T) {
	base := newTestBase(t)
	child := Builder("child", false, 1, 1, base, base.Alloc, base.Free, 0)
	err := child.Add(0x5000, 0x100, 0)
	assert.ErrorIs(t, err, ErrSourcedArenaAdd)
}

func TestDestroyRejectsOutstandingAllocations(t *testing.T) {
	a := newTestBase(t)
	_, err := a.Alloc(0x10, 0)
	require.NoError(t, err)
	assert.Error(t, a.Destroy())
}
