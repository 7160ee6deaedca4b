// Package kmem wires the self-sufficient base arena and the three
// seed slab caches together before any other allocator exists: base
// (no source, seeded directly from the page allocator), kpages
// (layered on base, page-granular), and kmalloc (layered on kpages,
// byte-granular), plus CacheCache, SlabCache, and BufctlCache, the
// seed caches a dynamic kmem.CreateCache draws its own bookkeeping
// allocations from once bootstrap wires them in.
package kmem

import (
	"fmt"
	"sync"

	"github.com/pavanmanishd/kmem/config"
	"github.com/pavanmanishd/kmem/internal/page"
	"github.com/pavanmanishd/kmem/slab"
	"github.com/pavanmanishd/kmem/vmem"
)

// baseRegionStart is an arbitrary nonzero base for the simulated
// address space: nonzero so address 0 stays free to mean
// "unconstrained minaddr/maxaddr" throughout vmem.
const baseRegionStart = 0x10000000

// Well-known arenas and caches, valid only after Bootstrap succeeds.
var (
	Base    *vmem.Arena
	KPages  *vmem.Arena
	KMalloc *vmem.Arena

	CacheCache  *slab.Cache
	SlabCache   *slab.Cache
	BufctlCache *slab.Cache

	Pages *page.Allocator
)

// approximate seed-cache object sizes: these three caches back the
// per-cache, per-slab-header, and per-bufctl bookkeeping allocations
// slab.SetHeaderSource/SetSlabHeaderSource/SetBufctlSource wire in
// below, once bootstrap itself no longer needs to allocate any of
// them directly.
const (
	cacheCacheObjSize  = 128
	slabCacheObjSize   = 64
	bufctlCacheObjSize = 24
)

var bootstrapOnce sync.Once
var bootstrapErr error

// Bootstrap performs the one-time arena/cache wiring described above.
// Safe to call more than once; only the first call does any work.
func Bootstrap(cfg *config.Config) error {
	bootstrapOnce.Do(func() {
		bootstrapErr = bootstrap(cfg)
	})
	return bootstrapErr
}

func bootstrap(cfg *config.Config) error {
	Pages = page.New(baseRegionStart)

	order := uint(0)
	for (1 << order) < cfg.BaseSeedPages {
		order++
	}
	seedAddr, err := Pages.AllocContPages(order)
	if err != nil {
		return fmt.Errorf("kmem: bootstrap: seeding base arena: %w", err)
	}

	Base = vmem.Builder("base", true, 1, cfg.ImportScale, nil, nil, nil, 0)
	if err := Base.Add(seedAddr, uintptr(1<<order)*page.Size, 0); err != nil {
		return fmt.Errorf("kmem: bootstrap: base.Add: %w", err)
	}

	KPages = vmem.Builder("kpages", false, cfg.KPagesQuantum, cfg.ImportScale, Base, Base.Alloc, Base.Free, 0)
	KMalloc = vmem.Builder("kmalloc", false, cfg.KMallocQuantum, cfg.ImportScale, KPages, KPages.Alloc, KPages.Free, 0)

	Base.SetBTGrowthPages(cfg.BTGrowthPages)
	KPages.SetBTGrowthPages(cfg.BTGrowthPages)
	KMalloc.SetBTGrowthPages(cfg.BTGrowthPages)

	CacheCache = slab.CacheCreate("kmem_cache_cache", cacheCacheObjSize, 8, nil, nil, KMalloc, Pages)
	SlabCache = slab.CacheCreate("kmem_slab_cache", slabCacheObjSize, 8, nil, nil, KMalloc, Pages)
	BufctlCache = slab.CacheCreate("kmem_bufctl_cache", bufctlCacheObjSize, 8, nil, nil, KMalloc, Pages)

	// From here on, every cache header, slab header, and bufctl record
	// anywhere in the system (including these three seed caches' own
	// subsequent growth) is drawn from the matching seed cache instead
	// of the Go heap directly. The one exception is the slab header of
	// each of SlabCache's own slabs, which stays a plain Go value.
	slab.SetHeaderSource(CacheCache)
	slab.SetSlabHeaderSource(SlabCache)
	slab.SetBufctlSource(BufctlCache)

	return nil
}

// Reset tears down the bootstrap state, for tests that need a fresh
// allocator; a test-only escape hatch, since a running kernel never
// re-bootstraps.
func Reset() {
	bootstrapOnce = sync.Once{}
	bootstrapErr = nil
	Base, KPages, KMalloc = nil, nil, nil
	CacheCache, SlabCache, BufctlCache = nil, nil, nil
	Pages = nil
	slab.SetHeaderSource(nil)
	slab.SetSlabHeaderSource(nil)
	slab.SetBufctlSource(nil)
}
