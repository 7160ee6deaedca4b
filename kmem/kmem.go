package kmem

import (
	"fmt"

	"github.com/pavanmanishd/kmem/slab"
	"github.com/pavanmanishd/kmem/vmem"
)

// Alloc is the generic byte-granular allocation entry point, the
// kmalloc arena exposed directly for callers that don't want a
// dedicated slab cache.
func Alloc(size uintptr, flags vmem.Flags) (uintptr, error) {
	if KMalloc == nil {
		return 0, fmt.Errorf("kmem: Alloc called before Bootstrap")
	}
	return KMalloc.Alloc(size, flags)
}

// Free returns a region obtained from Alloc.
func Free(addr, size uintptr) {
	if KMalloc == nil {
		panic("kmem: Free called before Bootstrap")
	}
	KMalloc.Free(addr, size)
}

// CreateCache builds a dynamically sized object cache backed by the
// kmalloc arena and the bootstrap page allocator. This is the path
// every cache beyond the three seed caches takes; its own bookkeeping
// header is drawn from CacheCache rather than the Go heap.
func CreateCache(name string, objSize, align uintptr, ctor, dtor func(obj []byte)) (*slab.Cache, error) {
	if KMalloc == nil || Pages == nil {
		return nil, fmt.Errorf("kmem: CreateCache called before Bootstrap")
	}
	return slab.CacheCreate(name, objSize, align, ctor, dtor, KMalloc, Pages), nil
}
