//go:build !unix

package page

// mmapAnon falls back to a plain heap buffer on non-unix hosts. This
// is a portability shim only, not a feature: the allocator logic above
// it should still build and test on any host.
func mmapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func munmapAnon([]byte) {}
