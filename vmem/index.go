package vmem

import "github.com/dolthub/maphash"

// hashChains is the static width of the allocated-tag hash table.
// Dynamic resizing is out of scope, so this stays fixed for the
// lifetime of the process.
const hashChains = 193

// segIndex is the three-index segment store: all_segs (a sorted
// ordering by start address, SPAN tie-broken before a co-starting
// non-SPAN tag), free_segs[64] (power-of-two size buckets), and
// alloc_hash[193] (chained by start address).
//
// all_segs is realized as a sorted intrusive doubly linked list
// rather than a red-black tree; coalesce and span-return are written
// against that representation throughout. See DESIGN.md's Open
// Questions entry.
type segIndex struct {
	segHead *boundaryTag
	free    [freeBuckets]*boundaryTag
	hash    [hashChains]*boundaryTag
	hasher  maphash.Hasher[uintptr]
}

func newSegIndex() *segIndex {
	return &segIndex{hasher: maphash.NewHasher[uintptr]()}
}

// less reports whether a sorts before b in all_segs: by start address,
// with a SPAN tag sorting before a non-SPAN tag at the same start.
func less(a, b *boundaryTag) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	aSpan := a.status == statusSpan
	bSpan := b.status == statusSpan
	return aSpan && !bSpan
}

// insertSeg inserts bt into the sorted segment list. O(n) scan: a
// red-black tree would make this O(log n), but that complexity isn't
// warranted for arenas not expected to carry more than a few thousand
// live segments.
func (ix *segIndex) insertSeg(bt *boundaryTag) {
	if ix.segHead == nil {
		ix.segHead = bt
		bt.segPrev, bt.segNext = nil, nil
		return
	}
	if less(bt, ix.segHead) {
		bt.segNext = ix.segHead
		bt.segPrev = nil
		ix.segHead.segPrev = bt
		ix.segHead = bt
		return
	}
	cur := ix.segHead
	for cur.segNext != nil && !less(bt, cur.segNext) {
		cur = cur.segNext
	}
	bt.segNext = cur.segNext
	bt.segPrev = cur
	if cur.segNext != nil {
		cur.segNext.segPrev = bt
	}
	cur.segNext = bt
}

func (ix *segIndex) removeSeg(bt *boundaryTag) {
	if bt.segPrev != nil {
		bt.segPrev.segNext = bt.segNext
	} else {
		ix.segHead = bt.segNext
	}
	if bt.segNext != nil {
		bt.segNext.segPrev = bt.segPrev
	}
	bt.segPrev, bt.segNext = nil, nil
}

// firstAtOrAfter returns the first segment (of any status) whose start
// is >= addr: the point xalloc's search walks from when a
// minaddr/maxaddr constrains it.
func (ix *segIndex) firstAtOrAfter(addr uintptr) *boundaryTag {
	for bt := ix.segHead; bt != nil; bt = bt.segNext {
		if bt.start >= addr {
			return bt
		}
	}
	return nil
}

// pushFree adds a FREE tag to its size bucket (LIFO, O(1)).
func (ix *segIndex) pushFree(bt *boundaryTag) {
	b := bucketIndex(bt.size)
	bt.chainNext = ix.free[b]
	ix.free[b] = bt
}

// removeFree unlinks bt from its size bucket.
func (ix *segIndex) removeFree(bt *boundaryTag) {
	b := bucketIndex(bt.size)
	ix.unlinkChain(&ix.free[b], bt)
}

// findBestFit scans the bucket holding size's own floor(log2) class
// for the smallest tag still >= size; failing that, it falls back to
// the first tag in any higher bucket.
func (ix *segIndex) findBestFit(size uintptr) *boundaryTag {
	b := bucketIndex(size)
	var best *boundaryTag
	for bt := ix.free[b]; bt != nil; bt = bt.chainNext {
		if bt.size >= size && (best == nil || bt.size < best.size) {
			best = bt
		}
	}
	if best != nil {
		return best
	}
	for i := b + 1; i < freeBuckets; i++ {
		if ix.free[i] != nil {
			return ix.free[i]
		}
	}
	return nil
}

// findInstantFit takes the first tag from the ceil(log2(size)) bucket
// or higher: every tag there is guaranteed >= size without scanning.
func (ix *segIndex) findInstantFit(size uintptr) *boundaryTag {
	b := ceilLog2Bucket(size)
	for i := b; i < freeBuckets; i++ {
		if ix.free[i] != nil {
			return ix.free[i]
		}
	}
	return nil
}

func (ix *segIndex) hashOf(start uintptr) int {
	return int(ix.hasher.Hash(start) % hashChains)
}

// pushHash adds an ALLOC tag to its chain, keyed by start address.
func (ix *segIndex) pushHash(bt *boundaryTag) {
	h := ix.hashOf(bt.start)
	bt.chainNext = ix.hash[h]
	ix.hash[h] = bt
}

func (ix *segIndex) removeHash(bt *boundaryTag) {
	h := ix.hashOf(bt.start)
	ix.unlinkChain(&ix.hash[h], bt)
}

// lookupHash finds the ALLOC tag starting at addr, or nil.
func (ix *segIndex) lookupHash(addr uintptr) *boundaryTag {
	h := ix.hashOf(addr)
	for bt := ix.hash[h]; bt != nil; bt = bt.chainNext {
		if bt.start == addr {
			return bt
		}
	}
	return nil
}

// unlinkChain removes bt from a singly linked chainNext list rooted
// at *head. Used for both free-list buckets and alloc-hash chains.
func (ix *segIndex) unlinkChain(head **boundaryTag, bt *boundaryTag) {
	if *head == bt {
		*head = bt.chainNext
		bt.chainNext = nil
		return
	}
	for cur := *head; cur != nil; cur = cur.chainNext {
		if cur.chainNext == bt {
			cur.chainNext = bt.chainNext
			bt.chainNext = nil
			return
		}
	}
}
