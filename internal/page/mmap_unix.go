//go:build unix

package page

import "golang.org/x/sys/unix"

// mmapAnon backs a page region with a private anonymous mapping via
// mmap(MAP_PRIVATE|MAP_ANONYMOUS), issued through golang.org/x/sys/unix.
func mmapAnon(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

func munmapAnon(b []byte) {
	_ = unix.Munmap(b)
}
