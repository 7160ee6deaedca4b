package slab

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pavanmanishd/kmem/internal/page"
	"github.com/pavanmanishd/kmem/vmem"
)

func TestSlabCacheLifecycleBDD(t *testing.T) {
	Convey("Given a slab cache for 64-byte objects", t, func() {
		pages := page.New(0x30000000)
		addr, err := pages.AllocContPages(2)
		So(err, ShouldBeNil)
		arena := vmem.Builder("bdd-base", true, 1, 1, nil, nil, nil, 0)
		So(arena.Add(addr, 4*page.Size, 0), ShouldBeNil)

		cache := CacheCreate("bdd-64", 64, 8, nil, nil, arena, pages)
		usable := page.Size - smallHeaderSize
		capacity := int(usable / cache.alignedObjSize)

		Convey("allocating objects up to one short of capacity leaves the slab partial", func() {
			var addrs []uintptr
			for i := 0; i < capacity-1; i++ {
				a, err := cache.Alloc()
				So(err, ShouldBeNil)
				addrs = append(addrs, a)
			}
			So(cache.partial.Len(), ShouldEqual, 1)
			So(cache.full.Len(), ShouldEqual, 0)

			Convey("one more allocation fills the slab", func() {
				a, err := cache.Alloc()
				So(err, ShouldBeNil)
				addrs = append(addrs, a)
				So(cache.full.Len(), ShouldEqual, 1)
				So(cache.partial.Len(), ShouldEqual, 0)

				Convey("freeing one object demotes it back to partial", func() {
					cache.Free(addrs[0])
					So(cache.partial.Len(), ShouldEqual, 1)
					So(cache.full.Len(), ShouldEqual, 0)

					Convey("freeing every remaining object empties the slab", func() {
						for _, a := range addrs[1:] {
							cache.Free(a)
						}
						So(cache.partial.Len(), ShouldEqual, 0)
						So(cache.empty.Len(), ShouldEqual, 1)

						Convey("reaping destroys the empty slab and is idempotent", func() {
							cache.Reap()
							So(cache.empty.Len(), ShouldEqual, 0)
							cache.Reap()
							So(cache.empty.Len(), ShouldEqual, 0)
						})
					})
				})
			})
		})
	})
}
