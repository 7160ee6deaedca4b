package vmem

import (
	"fmt"
	"io"
)

// AmtAlloc returns the number of bytes currently allocated out of the arena.
func (a *Arena) AmtAlloc() uintptr {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.amtAllocSegs
}

// AmtTotal returns the number of bytes currently under the arena's
// management, whether added by Add or imported, regardless of current
// use. A span returned to the source is subtracted again.
func (a *Arena) AmtTotal() uintptr {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.amtTotalSegs
}

// AmtFree returns the number of bytes currently free for allocation.
func (a *Arena) AmtFree() uintptr {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.amtTotalSegs - a.amtAllocSegs
}

// NumAllocs returns the lifetime count of successful Alloc/Xalloc calls,
// plus, for a base arena, each page it carved out of its own free
// segments for boundary tags. Free does not decrement it.
func (a *Arena) NumAllocs() uintptr {
	a.mu.Acquire()
	defer a.mu.Release()
	return a.nrAllocs
}

// Stats is a consistent snapshot of an arena's bookkeeping counters,
// all read under one lock acquisition. Prefer this over calling
// AmtAlloc/AmtTotal/AmtFree/NumAllocs individually when a caller needs
// more than one field to agree with the others at the same instant.
type Stats struct {
	AmtAlloc  uintptr
	AmtTotal  uintptr
	AmtFree   uintptr
	NumAllocs uintptr
}

// Stats returns a Stats snapshot taken atomically with respect to
// concurrent Alloc/Free/Xalloc calls.
func (a *Arena) Stats() Stats {
	a.mu.Acquire()
	defer a.mu.Release()
	return Stats{
		AmtAlloc:  a.amtAllocSegs,
		AmtTotal:  a.amtTotalSegs,
		AmtFree:   a.amtTotalSegs - a.amtAllocSegs,
		NumAllocs: a.nrAllocs,
	}
}

// PrintStats writes a human-readable summary to w.
func (a *Arena) PrintStats(w io.Writer) error {
	a.mu.Acquire()
	s := Stats{
		AmtAlloc:  a.amtAllocSegs,
		AmtTotal:  a.amtTotalSegs,
		AmtFree:   a.amtTotalSegs - a.amtAllocSegs,
		NumAllocs: a.nrAllocs,
	}
	unused := a.countUnused()
	a.mu.Release()
	_, err := fmt.Fprintf(w, "arena %q: total=%d alloc=%d free=%d allocs=%d unused_bts=%d\n",
		a.name, s.AmtTotal, s.AmtAlloc, s.AmtFree, s.NumAllocs, unused)
	return err
}

// CheckInvariants walks the segment index and verifies the structural
// invariants a consistent arena must hold:
//  1. all_segs is sorted by start address with no overlaps between
//     non-SPAN tags. A SPAN tag covers the tags that follow it, so it
//     is skipped and restarts the comparison.
//  2. adjacent FREE tags within one span never survive (coalescing
//     completeness).
//  3. every FREE tag present in all_segs appears in exactly its size
//     bucket, and vice versa.
//  4. every ALLOC tag present in all_segs appears in the hash table,
//     and vice versa.
//
// It returns the first violation found, or nil. Intended for tests and
// for an operator-triggered diagnostic dump, not the hot allocation
// path; hot-path invariant checking is the build-tag gated
// internal/kdebug.Assert calls sprinkled through Alloc/Free instead.
func (a *Arena) CheckInvariants() error {
	a.mu.Acquire()
	defer a.mu.Release()

	var prev *boundaryTag
	seenFree := map[*boundaryTag]bool{}
	seenAlloc := map[*boundaryTag]bool{}

	for bt := a.idx.segHead; bt != nil; bt = bt.segNext {
		if bt.status == statusSpan {
			prev = nil
			continue
		}
		if prev != nil {
			if bt.start < prev.start+prev.size {
				return fmt.Errorf("vmem: %q: segments overlap: [%#x,%#x) and [%#x,%#x)",
					a.name, prev.start, prev.start+prev.size, bt.start, bt.start+bt.size)
			}
			if prev.status == statusFree && bt.status == statusFree {
				return fmt.Errorf("vmem: %q: adjacent FREE tags at %#x and %#x were not coalesced",
					a.name, prev.start, bt.start)
			}
		}
		switch bt.status {
		case statusFree:
			seenFree[bt] = true
		case statusAlloc:
			seenAlloc[bt] = true
		}
		prev = bt
	}

	for b := 0; b < freeBuckets; b++ {
		for bt := a.idx.free[b]; bt != nil; bt = bt.chainNext {
			if !seenFree[bt] {
				return fmt.Errorf("vmem: %q: free bucket %d references a tag not in all_segs", a.name, b)
			}
			delete(seenFree, bt)
		}
	}
	if len(seenFree) != 0 {
		return fmt.Errorf("vmem: %q: %d FREE tags in all_segs are missing from their free bucket", a.name, len(seenFree))
	}

	for h := 0; h < hashChains; h++ {
		for bt := a.idx.hash[h]; bt != nil; bt = bt.chainNext {
			if !seenAlloc[bt] {
				return fmt.Errorf("vmem: %q: alloc hash chain %d references a tag not in all_segs", a.name, h)
			}
			delete(seenAlloc, bt)
		}
	}
	if len(seenAlloc) != 0 {
		return fmt.Errorf("vmem: %q: %d ALLOC tags in all_segs are missing from the hash table", a.name, len(seenAlloc))
	}

	return nil
}
