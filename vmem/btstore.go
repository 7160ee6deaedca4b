package vmem

import (
	"fmt"

	"github.com/pavanmanishd/kmem/internal/page"
)

// btagsPerPage approximates the usual "~64 BTs per page" rule of
// thumb: in C this bounds how many boundaryTag-sized records fit in
// one page of real memory, alongside the first tag used to account
// for the page itself. Go's boundaryTag values don't live inside the
// fetched page (see tag.go's doc comment), so there is no header slot
// to reserve; all slots go to the unused pool.
const btagsPerPage = 64

// getBT pops a tag off the unused pool. Callers must have called
// acquireBT first; it never returns nil.
func (a *Arena) getBT() *boundaryTag {
	bt := a.unusedBT
	if bt == nil {
		panic("vmem: getBT called with an empty pool; caller skipped acquireBT")
	}
	a.unusedBT = bt.chainNext
	*bt = boundaryTag{}
	return bt
}

// freeBT returns bt to the unused pool. Tags are never freed to the
// host runtime individually; only a whole arena's pool returns its
// backing pages, on Destroy.
func (a *Arena) freeBT(bt *boundaryTag) {
	bt.segPrev, bt.segNext = nil, nil
	bt.chainNext = a.unusedBT
	a.unusedBT = bt
}

func (a *Arena) countUnused() int {
	n := 0
	for p := a.unusedBT; p != nil; p = p.chainNext {
		n++
	}
	return n
}

// acquireBT guarantees at least need tags sit on the unused pool,
// growing it btGrowthPages pages (default one) at a time if necessary. Must be called with
// a.mu held; it may release and reacquire a.mu (non-base path) or
// pull a page directly out of its own free list (base path).
func (a *Arena) acquireBT(need int, flags Flags) error {
	for a.countUnused() < need {
		if err := a.growBTPool(flags); err != nil {
			return err
		}
	}
	return nil
}

// growBTPool fetches one more page-sized slab of boundary tags,
// batching btGrowthPages pages per step when configured above the
// default of one.
func (a *Arena) growBTPool(flags Flags) error {
	n := a.btGrowthPages
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if a.isBase {
			if err := a.growBaseBTPool(flags); err != nil {
				return err
			}
			continue
		}
		base := a.findBase()
		a.mu.Release()
		addr, err := base.Alloc(page.Size, InstantFit|flags.mem())
		a.mu.Acquire()
		if err != nil {
			return err
		}
		a.layBTPage(addr)
	}
	return nil
}

// growBaseBTPool carves a page directly out of the base arena's own
// free-segment list to back a fresh slab of boundary tags.
//
// It deliberately does not go through allocLocked/acquireBT: that path
// itself calls acquireBT first, and when the unused pool is already
// empty (the exact situation growBTPool exists to fix) it would just
// call back into growBTPool, forever. Instead it repurposes the free
// tag it finds in place, consuming no spare tag from the pool it is
// trying to grow, and only splits off the surplus once the fresh tags
// laid down below make a spare available to split with.
func (a *Arena) growBaseBTPool(flags Flags) error {
	bt := a.idx.findInstantFit(page.Size)
	if bt == nil {
		if flags.atomic() {
			return ErrOutOfMemory
		}
		panic(fmt.Sprintf("vmem: %q: out of memory growing the boundary-tag pool", a.name))
	}

	a.idx.removeFree(bt)
	addr, full := bt.start, bt.size
	bt.status = statusAlloc
	a.idx.pushHash(bt)
	a.amtAllocSegs += full
	a.nrAllocs++

	a.layBTPage(addr)

	if full > page.Size {
		rem := a.getBT()
		rem.start = addr + page.Size
		rem.size = full - page.Size
		rem.status = statusFree
		bt.size = page.Size
		a.amtAllocSegs -= rem.size
		a.idx.insertSeg(rem)
		a.idx.pushFree(rem)
	}
	return nil
}

// layBTPage materializes a page's worth of fresh unused tags and
// records addr so Destroy can return the page later.
func (a *Arena) layBTPage(addr uintptr) {
	a.btPages = append(a.btPages, addr)
	for i := 0; i < btagsPerPage; i++ {
		a.freeBT(&boundaryTag{})
	}
}

// findBase walks the source chain to the root base arena. BT growth
// for a non-base arena always targets the base directly, not
// necessarily that arena's own immediate source.
func (a *Arena) findBase() *Arena {
	x := a
	for !x.isBase {
		x = x.source
	}
	return x
}
