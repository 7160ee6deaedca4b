package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/kmem/internal/page"
	"github.com/pavanmanishd/kmem/vmem"
)

func newTestArena(t *testing.T, pageCount int) (*vmem.Arena, *page.Allocator) {
	t.Helper()
	pages := page.New(0x20000000)
	order := uint(0)
	for (1 << order) < pageCount {
		order++
	}
	addr, err := pages.AllocContPages(order)
	require.NoError(t, err)

	arena := vmem.Builder("slab-test", true, 1, 1, nil, nil, nil, 0)
	require.NoError(t, arena.Add(addr, uintptr(1<<order)*page.Size, 0))
	return arena, pages
}

// Scenario 6: slab lifecycle, obj_size=64.
func TestSlabLifecycle(t *testing.T) {
	arena, pages := newTestArena(t, 4)
	c := CacheCreate("test-64", 64, 8, nil, nil, arena, pages)
	require.False(t, c.IsLarge())

	usable := page.Size - smallHeaderSize
	numTotal := int(usable / c.alignedObjSize)
	require.Greater(t, numTotal, 1, "test assumes more than one object per slab")

	var addrs []uintptr
	for i := 0; i < numTotal-1; i++ {
		addr, err := c.Alloc()
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	assert.Equal(t, 1, c.partial.Len(), "slab should still be partial with one slot free")
	assert.Equal(t, 0, c.full.Len())

	last, err := c.Alloc()
	require.NoError(t, err)
	addrs = append(addrs, last)
	assert.Equal(t, 0, c.partial.Len())
	assert.Equal(t, 1, c.full.Len(), "the allocation that takes the last free slot should move the slab to full")

	c.Free(addrs[0])
	assert.Equal(t, 1, c.partial.Len(), "freeing one object demotes the slab back to partial")
	assert.Equal(t, 0, c.full.Len())

	for _, a := range addrs[1:] {
		c.Free(a)
	}
	assert.Equal(t, 0, c.partial.Len())
	assert.Equal(t, 1, c.empty.Len(), "freeing every object demotes the slab to empty")
}

func TestSmallSlabObjectsAreWritable(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	c := CacheCreate("bytes", 32, 8, nil, nil, arena, pages)

	a1, err := c.Alloc()
	require.NoError(t, err)
	a2, err := c.Alloc()
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)

	buf1 := c.Bytes(a1)
	buf1[0] = 0xAB
	buf2 := c.Bytes(a2)
	assert.NotEqual(t, byte(0xAB), buf2[0], "writes to one object must not alias another")
}

func TestLargeSlabUsesBufctls(t *testing.T) {
	_, pages := newTestArena(t, 1)
	bigObjSize := uintptr(LargeCutoff * 2)
	c := CacheCreate("test-large", bigObjSize, 8, nil, nil, nil, pages)
	require.True(t, c.IsLarge())

	addr, err := c.Alloc()
	require.NoError(t, err)
	buf := c.Bytes(addr)
	buf[0] = 0x7

	c.Free(addr)
	assert.Equal(t, uintptr(0), c.NrCurAlloc())
}

func TestCtorDtorRunOnGrowAndDestroy(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	var ctorCalls, dtorCalls int
	ctor := func(obj []byte) { ctorCalls++ }
	dtor := func(obj []byte) { dtorCalls++ }

	c := CacheCreate("ctor-dtor", 16, 8, ctor, dtor, arena, pages)
	addr, err := c.Alloc()
	require.NoError(t, err)
	assert.Greater(t, ctorCalls, 0, "growing a slab should construct every object up front")

	c.Free(addr)
	c.Reap()
	assert.Equal(t, ctorCalls, dtorCalls, "reaping an empty slab destructs every object it constructed")
}

func TestReapIsIdempotent(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	c := CacheCreate("reap", 16, 8, nil, nil, arena, pages)

	addr, err := c.Alloc()
	require.NoError(t, err)
	c.Free(addr)

	c.Reap()
	emptyAfterFirst := c.empty.Len()
	c.Reap()
	assert.Equal(t, emptyAfterFirst, c.empty.Len(), "a second reap with nothing newly emptied is a no-op")
}

func TestDestroyRejectsLiveSlabs(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	c := CacheCreate("busy", 16, 8, nil, nil, arena, pages)
	_, err := c.Alloc()
	require.NoError(t, err)
	assert.Error(t, c.Destroy())
}

func TestFreeOfForeignAddressPanics(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	c := CacheCreate("foreign", 16, 8, nil, nil, arena, pages)
	assert.Panics(t, func() { c.Free(0xbad0) })
}

func TestRegistryOrdersBySize(t *testing.T) {
	arena, pages := newTestArena(t, 2)
	small := CacheCreate("reg-small", 8, 8, nil, nil, arena, pages)
	defer registryRemove(small)
	big := CacheCreate("reg-big", 256, 8, nil, nil, arena, pages)
	defer registryRemove(big)

	caches := Caches()
	var sawSmall, sawBig bool
	for i, c := range caches {
		if c == small {
			sawSmall = true
		}
		if c == big {
			sawBig = true
			require.True(t, sawSmall, "smaller objSize must sort earlier")
		}
		_ = i
	}
	assert.True(t, sawSmall)
	assert.True(t, sawBig)
}
