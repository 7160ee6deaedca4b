// Package slab implements a per-size object cache: small-slab
// (header-in-page) and large-slab (bufctl-tracked) object layouts,
// sub-allocating fixed-size objects out of pages supplied by a
// backing vmem.Arena.
package slab

import (
	"container/list"
	"math/bits"

	"github.com/pavanmanishd/kmem/internal/page"
)

// LargeCutoff is SLAB_LARGE_CUTOFF: objects at or below this size use
// the small-slab (header-in-page) layout; larger objects use the
// large-slab (bufctl-tracked) layout. Chosen here as an eighth of a
// page, the same order of magnitude Solaris-derived slab allocators
// use.
const LargeCutoff = page.Size / 8

// NumBufPerSlab is NUM_BUF_PER_SLAB, the target object count a large
// slab sizes itself to hold before rounding its page count up to a
// power of two. Chosen as a modest batch size so large-object slabs
// don't balloon to many pages.
const NumBufPerSlab = 8

// linkWordSize is the width of the trailing word reserved in every
// object: a free-list link for small slabs. Large slabs reserve the
// word but leave it unused; their bufctl is found through
// Cache.objBufctl instead. Fixed at 8 bytes regardless of host
// word size, since this is a simulated address space (internal/page
// addresses), not a real pointer width.
const linkWordSize = 8

// smallHeaderSize is the space reserved for the small-slab header at
// the top of the page. Nothing is written there: the owning slabHeader
// record is ordinary Go heap state, not page-resident (see
// slabHeader's doc comment), and is found through Cache.pageIndex.
const smallHeaderSize = 16

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// alignedObjSize computes round_up(objSize+word, align).
func alignedObjSize(objSize, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}
	return alignUp(objSize+linkWordSize, align)
}

// ceilLog2 returns ceil(log2(n)) for n >= 1.
func ceilLog2(n uintptr) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(uint(n - 1)))
}

// slabHeader tracks one backing slab. Unlike a kernel, which must
// carve this record out of the very page it describes (small slab) or
// from a separately allocated chunk (large slab), this is an ordinary
// Go heap value. What it tracks is the same either way: the backing
// extent, free/used accounting, and (for large slabs) the bufctl free
// list.
//
// hdrAddr/hdrOwner, when hdrOwner is non-nil, record a bookkeeping
// allocation drawn from a dedicated header-tracking cache (see
// SetSlabHeaderSource) so that cache genuinely backs the slab headers
// its seed exists for, instead of sitting unused.
type slabHeader struct {
	base     uintptr // page-aligned start of the backing extent
	pages    int     // number of pages backing this slab
	order    uint    // log2(pages), for large slabs (FreeContPages needs it)
	large    bool
	numTotal int
	numFree  int

	freeHead uintptr // small slab: address of first free object, or 0
	bufFree  *bufctl // large slab: head of the free bufctl chain

	elem *list.Element // this slab's node in its current list (full/partial/empty)

	hdrAddr  uintptr
	hdrOwner *Cache
}
