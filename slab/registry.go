package slab

import (
	"fmt"
	"io"

	"github.com/pavanmanishd/kmem/internal/kspin"
)

// registry is the global, size-sorted singly linked list of every
// live cache, protected by its own leaf lock: a cache's own lock is
// never held while walking or mutating this list, so destroy and
// diagnostic dumps never reenter a cache's lock.
var registry = struct {
	mu   kspin.Lock
	head *Cache
}{}

func registryAdd(c *Cache) {
	registry.mu.Acquire()
	defer registry.mu.Release()

	if registry.head == nil || c.objSize <= registry.head.objSize {
		c.regNext = registry.head
		registry.head = c
		return
	}
	cur := registry.head
	for cur.regNext != nil && cur.regNext.objSize < c.objSize {
		cur = cur.regNext
	}
	c.regNext = cur.regNext
	cur.regNext = c
}

func registryRemove(c *Cache) {
	registry.mu.Acquire()
	defer registry.mu.Release()

	if registry.head == c {
		registry.head = c.regNext
		c.regNext = nil
		return
	}
	for cur := registry.head; cur != nil; cur = cur.regNext {
		if cur.regNext == c {
			cur.regNext = c.regNext
			c.regNext = nil
			return
		}
	}
}

// Caches returns a snapshot of every live cache, size-sorted.
func Caches() []*Cache {
	registry.mu.Acquire()
	defer registry.mu.Release()

	var out []*Cache
	for c := registry.head; c != nil; c = c.regNext {
		out = append(out, c)
	}
	return out
}

// PrintRegistry writes a one-line summary per live cache.
func PrintRegistry(w io.Writer) error {
	for _, c := range Caches() {
		if _, err := fmt.Fprintf(w, "cache %q: objsize=%d large=%v curalloc=%d\n",
			c.Name(), c.ObjSize(), c.IsLarge(), c.NrCurAlloc()); err != nil {
			return err
		}
	}
	return nil
}
