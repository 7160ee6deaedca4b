// Package vmem implements a Vmem-style boundary-tag arena: a manager
// of an arbitrary integer-addressed resource namespace, allocating by
// best-fit, instant-fit, next-fit or constrained xalloc, splitting and
// coalescing free segments, and importing/returning spans from/to a
// source arena.
package vmem

import (
	"fmt"

	"github.com/pavanmanishd/kmem/internal/kdebug"
	"github.com/pavanmanishd/kmem/internal/kspin"
	"github.com/pavanmanishd/kmem/internal/page"
)

// AllocFunc is a source arena's allocate entry point, bound at Create
// time (typically a source arena's own Alloc method value).
type AllocFunc func(size uintptr, flags Flags) (uintptr, error)

// FreeFunc is a source arena's free entry point. Contractually
// infallible: it never fails.
type FreeFunc func(addr, size uintptr)

// Arena is a manager of one resource namespace, optionally layered on
// a source arena that it imports spans from.
type Arena struct {
	mu kspin.Lock

	name        string
	isBase      bool
	quantum     uintptr
	importScale uint
	qcacheMax   uintptr // reserved; quantum caches are out of scope

	source *Arena
	afunc  AllocFunc
	ffunc  FreeFunc

	idx           *segIndex
	unusedBT      *boundaryTag
	btPages       []uintptr // addresses of pages fetched to grow this arena's own BT pool
	btGrowthPages int       // pages fetched per growBTPool step; see SetBTGrowthPages

	amtTotalSegs     uintptr
	amtAllocSegs     uintptr
	nrAllocs         uintptr
	lastNextfitAlloc uintptr
	nextfitStarted   bool
}

// Create builds a new arena. base/size, if size != 0, are added as the
// arena's first resource the same way Add would; a zero size creates
// an empty arena that grows only by import (source must then be
// non-nil).
func Create(name string, base, size, quantum uintptr, afunc AllocFunc, ffunc FreeFunc, source *Arena, qcacheMax uintptr, flags Flags) (*Arena, error) {
	if quantum == 0 {
		quantum = 1
	}
	a := &Arena{
		name:        name,
		quantum:     quantum,
		importScale: 1,
		qcacheMax:   qcacheMax,
		source:      source,
		afunc:       afunc,
		ffunc:       ffunc,
		idx:         newSegIndex(),
	}
	if size != 0 {
		if err := a.Add(base, size, flags); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Builder constructs a bootstrap arena pre-seeded with two unused
// boundary tags, so its very first Add (for the base arena) or first
// Alloc (for an arena layered on the base) never needs to grow the BT
// pool before it has anywhere to put a tag. Used by kmem's bootstrap
// for the base, kpages, and kmalloc arenas.
func Builder(name string, isBase bool, quantum uintptr, importScale uint, source *Arena, afunc AllocFunc, ffunc FreeFunc, qcacheMax uintptr) *Arena {
	if quantum == 0 {
		quantum = 1
	}
	a := &Arena{
		name:        name,
		isBase:      isBase,
		quantum:     quantum,
		importScale: importScale,
		qcacheMax:   qcacheMax,
		source:      source,
		afunc:       afunc,
		ffunc:       ffunc,
		idx:         newSegIndex(),
	}
	a.freeBT(&boundaryTag{})
	a.freeBT(&boundaryTag{})
	return a
}

// Name, Quantum, IsBase expose the arena's identity for diagnostics
// and for layering another arena on top of this one.
func (a *Arena) Name() string     { return a.name }
func (a *Arena) Quantum() uintptr { return a.quantum }
func (a *Arena) IsBase() bool     { return a.isBase }
func (a *Arena) HasSource() bool  { return a.source != nil }

// SetBTGrowthPages overrides how many pages growBTPool fetches per
// growth step (config.Config.BTGrowthPages); the zero value means one
// page at a time.
func (a *Arena) SetBTGrowthPages(n int) { a.btGrowthPages = n }

// Add registers a manually-supplied resource range. Forbidden on
// arenas with a source: those only grow by import.
func (a *Arena) Add(addr, size uintptr, flags Flags) error {
	if a.source != nil {
		return ErrSourcedArenaAdd
	}
	a.mu.Acquire()
	defer a.mu.Release()
	return a.addLocked(addr, size, flags)
}

func (a *Arena) addLocked(addr, size uintptr, flags Flags) error {
	if err := a.acquireBT(1, flags); err != nil {
		return err
	}
	bt := a.getBT()
	bt.start, bt.size, bt.status = addr, size, statusFree
	a.idx.insertSeg(bt)
	a.idx.pushFree(bt)
	a.amtTotalSegs += size
	return nil
}

// Alloc allocates size bytes (rounded up to the arena's quantum)
// under the requested policy.
func (a *Arena) Alloc(size uintptr, flags Flags) (uintptr, error) {
	size = alignUp(size, a.quantum)
	if size == 0 {
		return 0, fmt.Errorf("vmem: %q: alloc size must be non-zero", a.name)
	}
	if flags.policy() == NextFit {
		return a.allocNextFit(size, flags)
	}
	a.mu.Acquire()
	defer a.mu.Release()
	return a.allocLocked(size, flags)
}

func (a *Arena) allocLocked(size uintptr, flags Flags) (uintptr, error) {
	for {
		if err := a.acquireBT(1, flags); err != nil {
			return 0, err
		}
		var bt *boundaryTag
		if flags.policy() == BestFit {
			bt = a.idx.findBestFit(size)
		} else {
			bt = a.idx.findInstantFit(size)
		}
		if bt != nil {
			return a.takeLocked(bt, size), nil
		}
		if err := a.importSpanLocked(size, flags); err != nil {
			if flags.atomic() {
				return 0, ErrOutOfMemory
			}
			panic(fmt.Sprintf("vmem: %q: out of memory allocating %d bytes: %v", a.name, size, err))
		}
	}
}

// takeLocked commits bt (or its head after a split) as the allocation,
// splitting off a free remainder if bt is larger than size.
func (a *Arena) takeLocked(bt *boundaryTag, size uintptr) uintptr {
	kdebug.Assert(bt.status == statusFree, "vmem: %q: takeLocked on a non-free tag at %#x", a.name, bt.start)
	kdebug.Assert(bt.size >= size, "vmem: %q: takeLocked tag at %#x (size %d) is smaller than requested %d", a.name, bt.start, bt.size, size)
	a.idx.removeFree(bt)
	if bt.size > size {
		rem := a.getBT()
		rem.start = bt.start + size
		rem.size = bt.size - size
		rem.status = statusFree
		bt.size = size
		a.idx.insertSeg(rem)
		a.idx.pushFree(rem)
	}
	bt.status = statusAlloc
	a.idx.pushHash(bt)
	a.amtAllocSegs += bt.size
	a.nrAllocs++
	return bt.start
}

// importSpanLocked imports a span from the source arena when no free
// segment satisfies a request. On success it adds two tags (SPAN +
// FREE) covering the imported extent; on failure to register after
// obtaining the span, the span is returned immediately so no partial
// state survives.
func (a *Arena) importSpanLocked(size uintptr, flags Flags) error {
	if a.afunc == nil {
		return ErrOutOfMemory
	}
	importSize := size
	if scaled := size << a.importScale; scaled > importSize {
		importSize = scaled
	}
	// The source rounds the request up to its own quantum; register the
	// span at that rounded size so returning it later matches exactly.
	if a.source != nil {
		importSize = alignUp(importSize, a.source.quantum)
	}
	addr, err := a.afunc(importSize, InstantFit|flags.mem())
	if err != nil {
		return err
	}
	if err := a.acquireBT(2, flags); err != nil {
		a.ffunc(addr, importSize)
		return err
	}
	spanBT := a.getBT()
	spanBT.start, spanBT.size, spanBT.status = addr, importSize, statusSpan
	freeBT := a.getBT()
	freeBT.start, freeBT.size, freeBT.status = addr, importSize, statusFree
	a.idx.insertSeg(spanBT)
	a.idx.insertSeg(freeBT)
	a.idx.pushFree(freeBT)
	a.amtTotalSegs += importSize
	return nil
}

// Free returns a previously allocated [addr, addr+size) range,
// coalescing with free neighbors and, if an entire imported span
// becomes free, returning it to the source.
func (a *Arena) Free(addr, size uintptr) {
	a.mu.Acquire()
	bt := a.idx.lookupHash(addr)
	if bt == nil {
		a.mu.Release()
		panic(fmt.Sprintf("vmem: %q: free of unmapped address %#x", a.name, addr))
	}
	if bt.size != size {
		a.mu.Release()
		panic(fmt.Sprintf("vmem: %q: free size %d does not match allocated size %d at %#x", a.name, size, bt.size, addr))
	}
	a.idx.removeHash(bt)
	bt.status = statusFree
	a.idx.pushFree(bt)
	a.amtAllocSegs -= bt.size

	bt = a.coalesceLocked(bt)
	doReturn, spanAddr, spanSize := a.maybeDetachSpanLocked(bt)
	a.mu.Release()

	if doReturn {
		a.ffunc(spanAddr, spanSize)
	}
}

// coalesceLocked merges bt with an adjacent FREE successor and/or
// predecessor, returning whichever tag now represents the merged
// extent.
func (a *Arena) coalesceLocked(bt *boundaryTag) *boundaryTag {
	if nxt := bt.segNext; nxt != nil && nxt.status == statusFree {
		a.mergeLocked(bt, nxt)
	}
	if prv := bt.segPrev; prv != nil && prv.status == statusFree {
		a.mergeLocked(prv, bt)
		bt = prv
	}
	return bt
}

func (a *Arena) mergeLocked(keep, drop *boundaryTag) {
	kdebug.Assert(keep.status == statusFree && drop.status == statusFree, "vmem: %q: mergeLocked on a non-free tag", a.name)
	kdebug.Assert(keep.start+keep.size == drop.start, "vmem: %q: mergeLocked tags are not adjacent: [%#x,%#x) and [%#x,+%d)", a.name, keep.start, keep.start+keep.size, drop.start, drop.size)
	a.idx.removeFree(keep)
	a.idx.removeFree(drop)
	keep.size += drop.size
	a.idx.removeSeg(drop)
	a.idx.pushFree(keep)
	a.freeBT(drop)
}

// maybeDetachSpanLocked checks whether bt's predecessor is a SPAN tag
// covering exactly bt's extent; if so the whole imported span is now
// free. Both tags are removed and returned to the unused pool; the
// caller is responsible for calling ffunc after releasing the lock.
func (a *Arena) maybeDetachSpanLocked(bt *boundaryTag) (ok bool, addr, size uintptr) {
	prv := bt.segPrev
	if prv == nil || prv.status != statusSpan || prv.start != bt.start || prv.size != bt.size {
		return false, 0, 0
	}
	a.idx.removeFree(bt)
	a.idx.removeSeg(bt)
	a.idx.removeSeg(prv)
	addr, size = prv.start, prv.size
	a.amtTotalSegs -= size
	a.freeBT(bt)
	a.freeBT(prv)
	return true, addr, size
}

// allocNextFit implements NEXTFIT via xalloc with a minaddr cursor
// that wraps on failure.
func (a *Arena) allocNextFit(size uintptr, flags Flags) (uintptr, error) {
	a.mu.Acquire()
	defer a.mu.Release()

	var start uintptr
	if a.nextfitStarted {
		start = a.lastNextfitAlloc + a.quantum
	}
	addr, err := a.xallocLocked(size, a.quantum, 0, 0, start, 0, flags)
	if err != nil && start != 0 {
		addr, err = a.xallocLocked(size, a.quantum, 0, 0, 0, 0, flags)
	}
	if err == nil {
		a.lastNextfitAlloc = addr
		a.nextfitStarted = true
	}
	return addr, err
}

// Destroy tears down the arena. It must have no outstanding
// allocations; any pages it fetched to grow its own BT pool are
// returned to the base arena that supplied them. Individual tags are
// never freed to the host runtime until the owning arena is
// destroyed.
func (a *Arena) Destroy() error {
	a.mu.Acquire()
	defer a.mu.Release()

	if a.amtAllocSegs != 0 {
		return fmt.Errorf("vmem: destroy %q: %d bytes still allocated", a.name, a.amtAllocSegs)
	}
	if !a.isBase {
		base := a.findBase()
		for _, p := range a.btPages {
			base.Free(p, page.Size)
		}
	}
	a.btPages = nil
	return nil
}
