// Package vmem implements a Vmem-style boundary-tag resource arena.
//
// # Overview
//
// An arena manages an arbitrary integer-addressed resource namespace:
// address ranges, but just as well object IDs, minor device numbers,
// or any other space a caller needs to hand out without collisions.
// Arenas layer: a child imports spans from a source arena on demand
// and returns them when a whole imported span frees, so a hierarchy
// of arenas can share one backing resource at different granularities.
// This is particularly useful for:
//
//   - A kernel-style allocator hierarchy (page frames -> pages -> bytes)
//   - Any resource pool that needs best-fit/instant-fit/next-fit policies
//   - Constrained allocation (aligned, phased, never crossing a boundary)
//   - Splitting and coalescing free segments without external bookkeeping
//
// # Basic Usage
//
//	base := vmem.Builder("base", true, 1, 1, nil, nil, nil, 0)
//	base.Add(0x10000, 0x100000, 0) // seed the base arena's own resource
//
//	child := vmem.Builder("child", false, 1, 1, base, base.Alloc, base.Free, 0)
//	addr, err := child.Alloc(256, vmem.BestFit)
//	child.Free(addr, 256)
//
// # Thread Safety
//
// Every Arena method is safe for concurrent use; each arena carries
// its own lock, acquired for the duration of the structural mutation.
// It is released before calling the source's free function and while
// boundary-tag growth allocates a page from the base arena; a span
// import calls the source's allocate function with the lock held.
//
// # Memory Layout
//
// An arena tracks segments as boundary tags: FREE, ALLOC, or SPAN
// (an imported extent's own bookkeeping tag). Tags live in a sorted
// segment list, free-list size buckets for fast fit search, and an
// address-hashed table for O(1) free-by-address. A dedicated unused-
// tag pool backs new tags without an external allocator; the base
// arena grows that pool directly out of its own free segments rather
// than importing from anywhere, so it never depends on a source to
// describe its own resource.
//
// # Performance Characteristics
//
//   - BestFit: scans one size bucket, falls back to the next higher
//   - InstantFit: O(1) amortized, takes the first tag at or above a bucket
//   - NextFit: an Xalloc segment-list walk from a wrapping cursor, O(n)
//   - Xalloc (constrained): O(n) scan of the segment list
//
// # Important Notes
//
//   - Free requires the exact (addr, size) pair Alloc returned
//   - An arena with a source may not also be grown by Add
//   - A constrained Xalloc never imports: it fails rather than
//     stranding a span the constraints can never satisfy
//
// # Metrics and Monitoring
//
// Stats returns a single atomic snapshot of an arena's bookkeeping:
//
//	s := a.Stats()
//	fmt.Printf("in use: %d / %d bytes\n", s.AmtAlloc, s.AmtTotal)
//
// The same fields are also available individually via AmtAlloc,
// AmtTotal, AmtFree, and NumAllocs for callers that only need one.
package vmem
