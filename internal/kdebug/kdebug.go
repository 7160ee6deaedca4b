package kdebug

import (
	"fmt"
	"os"

	"github.com/timandy/routine"
)

// Warnf reports a non-fatal condition to stderr, tagged with the
// reporting goroutine's id. This is the "warn" half of the panic/warn
// reporter contract the core treats as an external collaborator.
func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "kmem: warn [g%d]: %s\n", routine.Goid(), msg)
}

// Panicf reports a programmer error and panics. Unlike Assert (assert.go),
// this always runs: freeing an unknown address, a size mismatch at
// free, destroying a non-empty cache and the like are contract
// violations, not internal sanity checks, so they can't be compiled
// out.
func Panicf(format string, args ...any) {
	panic(fmt.Sprintf("kmem: "+format, args...))
}
