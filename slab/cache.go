package slab

import (
	"container/list"
	"encoding/binary"
	"fmt"

	"github.com/pavanmanishd/kmem/internal/kdebug"
	"github.com/pavanmanishd/kmem/internal/kspin"
	"github.com/pavanmanishd/kmem/internal/page"
	"github.com/pavanmanishd/kmem/vmem"
)

// Ctor/Dtor run over a freshly grown object's backing bytes, mirroring
// the optional constructor/destructor a cache may carry.
type Ctor func(obj []byte)
type Dtor func(obj []byte)

// Cache is a slab cache: a per-size object pool backed by an arena,
// with three slab lists (full/partial/empty).
type Cache struct {
	mu kspin.Lock

	name           string
	objSize        uintptr
	align          uintptr
	alignedObjSize uintptr
	large          bool
	ctor           Ctor
	dtor           Dtor

	arena *vmem.Arena
	pages *page.Allocator

	full    *list.List
	partial *list.List
	empty   *list.List

	pageIndex map[uintptr]*slabHeader // slab.base -> owning header, for O(1) free lookup
	objBufctl map[uintptr]*bufctl     // large slab only: live object addr -> its bufctl

	nrCurAlloc uintptr
	qcacheMax  uintptr // reserved; consumed nowhere

	regNext *Cache // global registry chain, see registry.go

	headerAddr  uintptr
	headerOwner *Cache // non-nil if this cache's own bookkeeping came from headerSource
}

// headerSource, slabHeaderSource, and bufctlSource are the caches that
// CacheCreate, slab growth, and bufctl creation draw their own
// bookkeeping allocations from once bootstrap wires them in (see
// SetHeaderSource and friends). Before that, and while a seed cache is
// drawing its own allocation, these fall back to plain Go heap values.
var (
	headerSource     *Cache
	slabHeaderSource *Cache
	bufctlSource     *Cache
)

// SetHeaderSource installs the cache new Cache records draw their own
// bookkeeping allocation from. A nil argument reverts to plain Go heap
// values.
func SetHeaderSource(c *Cache) { headerSource = c }

// SetSlabHeaderSource installs the cache new slabHeader records draw
// their own bookkeeping allocation from.
func SetSlabHeaderSource(c *Cache) { slabHeaderSource = c }

// SetBufctlSource installs the cache new bufctl records draw their own
// bookkeeping allocation from.
func SetBufctlSource(c *Cache) { bufctlSource = c }

// CacheCreate builds a new cache. objSize must be non-zero; align of
// 0 defaults to 1 (unaligned).
func CacheCreate(name string, objSize, align uintptr, ctor Ctor, dtor Dtor, arena *vmem.Arena, pages *page.Allocator) *Cache {
	if objSize == 0 {
		kdebug.Panicf("slab: %q: object size must be non-zero", name)
	}
	if align == 0 {
		align = 1
	}
	c := &Cache{
		name:           name,
		objSize:        objSize,
		align:          align,
		alignedObjSize: alignedObjSize(objSize, align),
		large:          objSize > LargeCutoff,
		ctor:           ctor,
		dtor:           dtor,
		arena:          arena,
		pages:          pages,
		full:           list.New(),
		partial:        list.New(),
		empty:          list.New(),
		pageIndex:      make(map[uintptr]*slabHeader),
	}
	if c.large {
		c.objBufctl = make(map[uintptr]*bufctl)
	}
	if src := headerSource; src != nil {
		if addr, err := src.Alloc(); err == nil {
			c.headerAddr = addr
			c.headerOwner = src
		}
	}
	registryAdd(c)
	return c
}

// Alloc pops one object from a partial slab, growing an empty one (or
// a fresh slab) first if none is partial. It returns the object's
// address, the same integer-addressed currency vmem.Arena deals in;
// use Bytes to get a read/write window onto it.
func (c *Cache) Alloc() (uintptr, error) {
	c.mu.Acquire()
	defer c.mu.Release()

	if c.partial.Len() == 0 {
		if c.empty.Len() == 0 {
			if err := c.grow(); err != nil {
				return 0, err
			}
		}
		el := c.empty.Front()
		c.empty.Remove(el)
		sh := el.Value.(*slabHeader)
		sh.elem = c.partial.PushBack(sh)
	}

	el := c.partial.Front()
	sh := el.Value.(*slabHeader)

	addr := c.popObject(sh)
	c.nrCurAlloc++

	if sh.numFree == 0 {
		c.partial.Remove(sh.elem)
		sh.elem = c.full.PushBack(sh)
	}
	return addr, nil
}

// Bytes returns a read/write window onto a live object previously
// returned by Alloc.
func (c *Cache) Bytes(addr uintptr) []byte {
	return c.pages.KVA(addr, c.objSize)
}

// Free returns addr to its owning slab, demoting the slab
// full-to-partial or partial-to-empty as its busy count falls. Slab
// identity is recovered by masking addr down to its page-aligned
// base; large slabs register every page of their multi-page extent in
// the same pageIndex.
func (c *Cache) Free(addr uintptr) {
	c.mu.Acquire()
	defer c.mu.Release()

	base := alignDown(addr, page.Size)
	sh, ok := c.pageIndex[base]
	if !ok {
		kdebug.Panicf("slab: %q: free of address %#x not owned by this cache", c.name, addr)
	}

	wasFull := sh.numFree == 0
	c.pushObject(sh, addr)
	c.nrCurAlloc--

	switch {
	case wasFull:
		c.full.Remove(sh.elem)
		sh.elem = c.partial.PushBack(sh)
	case sh.numFree == sh.numTotal:
		c.partial.Remove(sh.elem)
		sh.elem = c.empty.PushBack(sh)
	}
}

// Reap destroys every slab currently on the empty list. Calling Reap
// again with nothing newly emptied is a no-op.
func (c *Cache) Reap() {
	c.mu.Acquire()
	defer c.mu.Release()
	c.reapLocked()
}

func (c *Cache) reapLocked() {
	for el := c.empty.Front(); el != nil; {
		next := el.Next()
		sh := el.Value.(*slabHeader)
		c.destroySlab(sh)
		c.empty.Remove(el)
		el = next
	}
}

// Destroy tears the cache down: it must have no full or partial slabs
// outstanding, reaps the empty list, and unlinks from the global
// registry.
func (c *Cache) Destroy() error {
	c.mu.Acquire()
	if c.full.Len() != 0 || c.partial.Len() != 0 {
		c.mu.Release()
		return fmt.Errorf("slab: destroy %q: cache still has in-use slabs", c.name)
	}
	c.reapLocked()
	c.mu.Release()
	registryRemove(c)
	if c.headerOwner != nil {
		c.headerOwner.Free(c.headerAddr)
	}
	return nil
}

// grow allocates a new backing slab, runs the constructor over every
// object, and installs it on the empty list.
func (c *Cache) grow() error {
	if c.large {
		return c.growLarge()
	}
	return c.growSmall()
}

func (c *Cache) growSmall() error {
	addr, err := c.arena.Alloc(page.Size, 0)
	if err != nil {
		return err
	}
	usable := page.Size - smallHeaderSize
	numTotal := int(usable / c.alignedObjSize)
	if numTotal <= 0 {
		kdebug.Panicf("slab: %q: object too large for a small slab", c.name)
	}

	sh := &slabHeader{base: addr, pages: 1, numTotal: numTotal}
	if src := slabHeaderSource; src != nil && src != c {
		if hAddr, err := src.Alloc(); err == nil {
			sh.hdrAddr = hAddr
			sh.hdrOwner = src
		}
	}
	c.pageIndex[addr] = sh

	for i := numTotal - 1; i >= 0; i-- {
		objAddr := addr + uintptr(i)*c.alignedObjSize
		if c.ctor != nil {
			c.ctor(c.pages.KVA(objAddr, c.objSize))
		}
		c.linkFree(objAddr, sh.freeHead)
		sh.freeHead = objAddr
	}
	sh.numFree = numTotal
	sh.elem = c.empty.PushBack(sh)
	return nil
}

func (c *Cache) growLarge() error {
	minPgs := (NumBufPerSlab*c.alignedObjSize + page.Size - 1) / page.Size
	if minPgs == 0 {
		minPgs = 1
	}
	order := ceilLog2(minPgs)
	addr, err := c.pages.AllocContPages(order)
	if err != nil {
		return err
	}
	pages := 1 << order
	numTotal := int((uintptr(pages) * page.Size) / c.alignedObjSize)
	if numTotal <= 0 {
		kdebug.Panicf("slab: %q: object too large even for a full large slab", c.name)
	}

	sh := &slabHeader{base: addr, pages: pages, order: order, large: true, numTotal: numTotal}
	if src := slabHeaderSource; src != nil && src != c {
		if hAddr, err := src.Alloc(); err == nil {
			sh.hdrAddr = hAddr
			sh.hdrOwner = src
		}
	}
	for p := 0; p < pages; p++ {
		c.pageIndex[addr+uintptr(p)*page.Size] = sh
	}

	for i := 0; i < numTotal; i++ {
		objAddr := addr + uintptr(i)*c.alignedObjSize
		if c.ctor != nil {
			c.ctor(c.pages.KVA(objAddr, c.objSize))
		}
		bc := &bufctl{addr: objAddr, slab: sh}
		if src := bufctlSource; src != nil && src != c {
			if hAddr, err := src.Alloc(); err == nil {
				bc.hdrAddr = hAddr
				bc.hdrOwner = src
			}
		}
		pushBufctl(sh, bc)
	}
	sh.numFree = numTotal
	sh.elem = c.empty.PushBack(sh)
	return nil
}

// popObject removes one free object from sh and returns its address.
func (c *Cache) popObject(sh *slabHeader) uintptr {
	if sh.large {
		bc := popBufctl(sh)
		if bc == nil {
			kdebug.Panicf("slab: %q: slab marked partial/empty but has no free bufctl", c.name)
		}
		c.objBufctl[bc.addr] = bc
		sh.numFree--
		return bc.addr
	}
	kdebug.Assert(sh.numFree > 0, "slab: %q: popObject called on a slab with numFree=0", c.name)
	addr := sh.freeHead
	if addr == 0 && sh.numFree > 0 {
		kdebug.Panicf("slab: %q: free list exhausted but numFree=%d", c.name, sh.numFree)
	}
	sh.freeHead = c.readLink(addr)
	sh.numFree--
	return addr
}

// pushObject returns addr (within sh) to its free list/chain.
func (c *Cache) pushObject(sh *slabHeader, addr uintptr) {
	if sh.large {
		bc, ok := c.objBufctl[addr]
		if !ok {
			kdebug.Panicf("slab: %q: free of address %#x has no live bufctl", c.name, addr)
		}
		delete(c.objBufctl, addr)
		pushBufctl(sh, bc)
		sh.numFree++
		return
	}
	c.linkFree(addr, sh.freeHead)
	sh.freeHead = addr
	sh.numFree++
}

// destroySlab runs the destructor over every object still resident,
// frees any bufctl/header bookkeeping allocations drawn from another
// cache, and returns the backing pages/span to the arena. Only called
// on slabs from the empty list, so every large-slab bufctl is on
// sh.bufFree, none still live in objBufctl.
func (c *Cache) destroySlab(sh *slabHeader) {
	if c.dtor != nil {
		for i := 0; i < sh.numTotal; i++ {
			objAddr := sh.base + uintptr(i)*c.alignedObjSize
			c.dtor(c.pages.KVA(objAddr, c.objSize))
		}
	}
	if sh.large {
		for bc := sh.bufFree; bc != nil; bc = bc.next {
			if bc.hdrOwner != nil {
				bc.hdrOwner.Free(bc.hdrAddr)
			}
		}
	}
	for p := 0; p < sh.pages; p++ {
		delete(c.pageIndex, sh.base+uintptr(p)*page.Size)
	}
	if sh.large {
		c.pages.FreeContPages(sh.base, sh.order)
	} else {
		c.arena.Free(sh.base, page.Size)
	}
	if sh.hdrOwner != nil {
		sh.hdrOwner.Free(sh.hdrAddr)
	}
}

// linkFree writes next into the trailing link word of the object at
// addr, the small-slab free-list thread.
func (c *Cache) linkFree(addr uintptr, next uintptr) {
	buf := c.pages.KVA(addr+c.alignedObjSize-linkWordSize, linkWordSize)
	binary.LittleEndian.PutUint64(buf, uint64(next))
}

func (c *Cache) readLink(addr uintptr) uintptr {
	buf := c.pages.KVA(addr+c.alignedObjSize-linkWordSize, linkWordSize)
	return uintptr(binary.LittleEndian.Uint64(buf))
}

func alignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}

// NrCurAlloc reports the cache's live object count, for diagnostics.
func (c *Cache) NrCurAlloc() uintptr {
	c.mu.Acquire()
	defer c.mu.Release()
	return c.nrCurAlloc
}

func (c *Cache) Name() string          { return c.name }
func (c *Cache) ObjSize() uintptr      { return c.objSize }
func (c *Cache) IsLarge() bool         { return c.large }
