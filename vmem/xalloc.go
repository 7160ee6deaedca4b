package vmem

import "fmt"

// Xalloc implements the constrained allocator: size bytes, aligned to
// align, starting at an offset of phase within that alignment, never
// crossing a nocross-sized boundary, and confined to [minaddr,
// maxaddr) when those are non-zero (address 0 is reserved to mean
// "unconstrained").
func (a *Arena) Xalloc(size, align, phase, nocross, minaddr, maxaddr uintptr, flags Flags) (uintptr, error) {
	if align == 0 {
		align = a.quantum
	}
	size = alignUp(size, a.quantum)
	if size == 0 {
		return 0, fmt.Errorf("vmem: %q: xalloc size must be non-zero", a.name)
	}

	a.mu.Acquire()
	defer a.mu.Release()
	return a.xallocLocked(size, align, phase, nocross, minaddr, maxaddr, flags)
}

func (a *Arena) xallocLocked(size, align, phase, nocross, minaddr, maxaddr uintptr, flags Flags) (uintptr, error) {
	for {
		// xtakeLocked may split off both a free prefix and a free suffix.
		if err := a.acquireBT(2, flags); err != nil {
			return 0, err
		}
		if bt, start := a.xsearchLocked(size, align, phase, nocross, minaddr, maxaddr); bt != nil {
			return a.xtakeLocked(bt, start, size), nil
		}

		// A constrained request can't safely import: the freshly
		// imported span has no guarantee of satisfying align/phase/
		// nocross/minaddr/maxaddr, and leaving an unusable span
		// stranded on the arena isn't acceptable.
		constrained := align > a.quantum || phase != 0 || nocross != 0 || minaddr != 0 || maxaddr != 0
		if constrained {
			return 0, ErrConstraintUnsatisfiable
		}
		if err := a.importSpanLocked(size, flags); err != nil {
			if flags.atomic() {
				return 0, ErrOutOfMemory
			}
			panic(fmt.Sprintf("vmem: %q: out of memory xallocating %d bytes: %v", a.name, size, err))
		}
	}
}

// xsearchLocked walks all_segs looking for a FREE tag that can host an
// aligned-and-phased candidate of size bytes honoring nocross/minaddr/
// maxaddr. Returns the tag and the exact start address within it.
func (a *Arena) xsearchLocked(size, align, phase, nocross, minaddr, maxaddr uintptr) (*boundaryTag, uintptr) {
	var start *boundaryTag
	if minaddr != 0 {
		start = a.idx.firstAtOrAfter(minaddr)
	} else {
		start = a.idx.segHead
	}

	for bt := start; bt != nil; bt = bt.segNext {
		if bt.status != statusFree {
			continue
		}
		segStart, segEnd := bt.start, bt.start+bt.size
		if minaddr != 0 && segEnd <= minaddr {
			continue
		}
		if maxaddr != 0 && segStart >= maxaddr {
			break
		}
		lo := segStart
		if minaddr != 0 && minaddr > lo {
			lo = minaddr
		}
		hi := segEnd
		if maxaddr != 0 && maxaddr < hi {
			hi = maxaddr
		}

		candidate, ok := xfit(lo, hi, size, align, phase, nocross)
		if ok && candidate >= segStart && candidate+size <= segEnd {
			return bt, candidate
		}
	}
	return nil, 0
}

// xfit computes the first address in [lo, hi) that is phase-aligned
// (addr % align == phase) and for which [addr, addr+size) does not
// cross a nocross-sized boundary, or reports failure. This realizes
// the "advance try, shrink range, retry once" rule as one bounded
// retry that re-aligns the candidate to the next nocross boundary and
// then checks align/phase again with crossing checks disabled, rather
// than an unbounded search.
func xfit(lo, hi, size, align, phase, nocross uintptr) (uintptr, bool) {
	try := firstAligned(lo, align, phase)
	if try+size > hi || try < lo {
		return 0, false
	}
	if nocross == 0 || !crosses(try, size, nocross) {
		return try, true
	}

	boundary := alignUp(try+1, nocross)
	try2 := firstAligned(boundary, align, phase)
	if try2+size > hi || try2 < lo {
		return 0, false
	}
	if crosses(try2, size, 0) {
		return 0, false
	}
	return try2, true
}

// firstAligned returns round_up(lo, align) + phase % align. The result
// is >= lo and satisfies addr % align == phase % align, but it is not
// always the smallest such address: when lo already lies past the
// previous alignment boundary by less than phase, an earlier match is
// skipped.
func firstAligned(lo, align, phase uintptr) uintptr {
	if align <= 1 {
		return lo
	}
	phase %= align
	base := alignUp(lo, align)
	addr := base + phase
	if addr < lo {
		addr += align
	}
	return addr
}

// crosses reports whether [addr, addr+size) crosses a multiple of
// nocross, i.e. does not lie within a single nocross-aligned block.
// nocross == 0 means "no constraint".
func crosses(addr, size, nocross uintptr) bool {
	if nocross == 0 {
		return false
	}
	return addr/nocross != (addr+size-1)/nocross
}

// xtakeLocked commits a constrained allocation: bt may need splitting
// on both sides (a free prefix before start, a free suffix after
// start+size) since xalloc rarely consumes a free segment exactly.
func (a *Arena) xtakeLocked(bt *boundaryTag, start, size uintptr) uintptr {
	a.idx.removeFree(bt)

	oldStart, end := bt.start, bt.start+bt.size
	bt.start = start
	bt.size = size

	if start > oldStart {
		prefix := a.getBT()
		prefix.start = oldStart
		prefix.size = start - oldStart
		prefix.status = statusFree
		a.idx.insertSeg(prefix)
		a.idx.pushFree(prefix)
	}

	if suffixSize := end - (start + size); suffixSize > 0 {
		suffix := a.getBT()
		suffix.start = start + size
		suffix.size = suffixSize
		suffix.status = statusFree
		a.idx.insertSeg(suffix)
		a.idx.pushFree(suffix)
	}

	bt.status = statusAlloc
	a.idx.pushHash(bt)
	a.amtAllocSegs += size
	a.nrAllocs++
	return start
}
