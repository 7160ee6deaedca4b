package kmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/kmem/config"
	"github.com/pavanmanishd/kmem/slab"
)

func bootstrapForTest(t *testing.T) {
	t.Helper()
	Reset()
	cfg := config.Load()
	require.NoError(t, Bootstrap(cfg))
	t.Cleanup(Reset)
}

func TestBootstrapWiresArenaLayering(t *testing.T) {
	bootstrapForTest(t)

	assert.True(t, Base.IsBase())
	assert.False(t, KPages.IsBase())
	assert.False(t, KMalloc.IsBase())
	assert.True(t, KPages.HasSource())
	assert.True(t, KMalloc.HasSource())
}

func TestBootstrapIsIdempotent(t *testing.T) {
	bootstrapForTest(t)
	first := Base
	require.NoError(t, Bootstrap(config.Load()))
	assert.Same(t, first, Base, "a second Bootstrap call must not rebuild state")
}

func TestBootstrapSeedCachesAreRegistered(t *testing.T) {
	bootstrapForTest(t)

	assert.Equal(t, "kmem_cache_cache", CacheCache.Name())
	assert.Equal(t, "kmem_slab_cache", SlabCache.Name())
	assert.Equal(t, "kmem_bufctl_cache", BufctlCache.Name())
}

func TestKMallocAllocAndFree(t *testing.T) {
	bootstrapForTest(t)

	addr, err := Alloc(64, 0)
	require.NoError(t, err)
	assert.NotZero(t, addr)
	Free(addr, 64)
}

func TestCreateCacheBeforeBootstrapFails(t *testing.T) {
	Reset()
	_, err := CreateCache("early", 16, 8, nil, nil)
	assert.Error(t, err)
}

func TestDynamicCacheAllocatesThroughKMalloc(t *testing.T) {
	bootstrapForTest(t)

	c, err := CreateCache("widgets", 48, 8, nil, nil)
	require.NoError(t, err)
	addr, err := c.Alloc()
	require.NoError(t, err)
	assert.NotZero(t, addr)
	c.Free(addr)
}

func TestDynamicCacheDrawsHeaderFromCacheCache(t *testing.T) {
	bootstrapForTest(t)

	before := CacheCache.NrCurAlloc()
	_, err := CreateCache("gadgets", 48, 8, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, CacheCache.NrCurAlloc(), before,
		"CreateCache must draw its header from CacheCache rather than the Go heap")
}

func TestLargeDynamicCacheDrawsFromSlabAndBufctlCaches(t *testing.T) {
	bootstrapForTest(t)

	beforeSlab := SlabCache.NrCurAlloc()
	beforeBufctl := BufctlCache.NrCurAlloc()

	c, err := CreateCache("big-widgets", slab.LargeCutoff*2, 8, nil, nil)
	require.NoError(t, err)
	assert.True(t, c.IsLarge())

	addr, err := c.Alloc()
	require.NoError(t, err)
	assert.NotZero(t, addr)

	assert.Greater(t, SlabCache.NrCurAlloc(), beforeSlab,
		"growing a large cache's first slab must draw its header from SlabCache")
	assert.Greater(t, BufctlCache.NrCurAlloc(), beforeBufctl,
		"a large slab's bufctls must draw from BufctlCache")

	c.Free(addr)
}
